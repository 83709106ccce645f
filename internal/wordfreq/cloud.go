// Package wordfreq は単語頻度の集計とワードクラウド表示用の整形を提供する。
package wordfreq

import (
	"fmt"
	"math"
	"sort"

	"github.com/hitoshi/wordcloud/internal/model"
)

// フォントサイズの範囲（px）。
const (
	MinFontSize = 14
	MaxFontSize = 72
)

// CloudWord はワードクラウドの1語分の表示情報。
type CloudWord struct {
	Text  string
	Count int
	Size  float64
	Color string
}

// Rank は出現回数の降順、同数の場合は単語の辞書順（昇順）で並べ替える。
func Rank(words []model.WordCount) {
	sort.SliceStable(words, func(i, j int) bool {
		if words[i].Count != words[j].Count {
			return words[i].Count > words[j].Count
		}
		return words[i].Word < words[j].Word
	})
}

// Layout は順位付け済みの単語にフォントサイズと色を割り当てる。
// サイズは最大出現回数に対する比率で MinFontSize..MaxFontSize に線形に配置する。
func Layout(words []model.WordCount) []CloudWord {
	cloud := make([]CloudWord, 0, len(words))
	if len(words) == 0 {
		return cloud
	}

	maxCount := 0
	for _, w := range words {
		if w.Count > maxCount {
			maxCount = w.Count
		}
	}
	if maxCount <= 0 {
		maxCount = 1
	}

	colors := Palette(len(words))
	for i, w := range words {
		size := MinFontSize + float64(w.Count)/float64(maxCount)*(MaxFontSize-MinFontSize)
		size = math.Max(MinFontSize, math.Min(MaxFontSize, size))
		cloud = append(cloud, CloudWord{
			Text:  w.Word,
			Count: w.Count,
			Size:  math.Round(size*100) / 100,
			Color: colors[i],
		})
	}
	return cloud
}

// Palette は色相を等間隔に分割したn色を "#rrggbb" 形式で返す。
// 隣接する色が似すぎないよう彩度を3段階で循環させる。
func Palette(n int) []string {
	colors := make([]string, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		saturation := 0.6 + float64(i%3)*0.15
		r, g, b := hslToRGB(hue, saturation, 0.5)
		colors[i] = fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return colors
}

// hslToRGB は0..1のHSL値を0..255のRGB値に変換する。
func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	r := hueToChannel(p, q, h+1.0/3)
	g := hueToChannel(p, q, h)
	b := hueToChannel(p, q, h-1.0/3)
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
