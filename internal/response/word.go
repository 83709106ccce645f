// Package response は回答語の検証・正規化と回答の受付を提供する。
package response

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/wordcloud/internal/model"
)

// MaxWordLength は回答語の最大文字数。
const MaxWordLength = 50

// NormalizeWord は回答語を検証し、小文字化した単語を返す。
// 前後の空白は除去し、空・複数語・英数字以外を含む語・長すぎる語は拒否する。
// 英数字にはUnicodeの文字と数字を含む。
func NormalizeWord(raw string) (string, error) {
	word := strings.TrimSpace(raw)
	if word == "" {
		return "", model.NewInvalidWordError("回答が空です")
	}
	if len(strings.Fields(word)) > 1 {
		return "", model.NewInvalidWordError("複数の単語が含まれています")
	}
	for _, r := range word {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", model.NewInvalidWordError("使用できない文字が含まれています")
		}
	}
	if utf8.RuneCountInString(word) > MaxWordLength {
		return "", model.NewInvalidWordError("単語が長すぎます")
	}
	return strings.ToLower(word), nil
}

// fillerVocabulary は補完回答に使う固定の語彙。すべて正規化済み。
var fillerVocabulary = []string{
	"happy", "blue", "music", "coffee", "sunshine", "ocean", "friends", "travel",
	"pizza", "family", "green", "books", "summer", "dance", "mountain", "freedom",
	"red", "game", "team", "smile", "peace", "code", "rain", "star",
	"energy", "garden", "movie", "dream", "laugh", "chocolate", "river", "winter",
}

// PickFillers は語彙から重複のない補完語をn個選ぶ。
// 元の回答語と同じ語は含めない。
func PickFillers(word string, n int) []string {
	if n <= 0 {
		return nil
	}
	candidates := make([]string, 0, len(fillerVocabulary))
	for _, w := range fillerVocabulary {
		if w != word {
			candidates = append(candidates, w)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
