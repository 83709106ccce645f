// Package score はラウンドのスコア集計とリーダーボードを提供する。
package score

import (
	"sort"

	"github.com/hitoshi/wordcloud/internal/model"
)

// Entry はリーダーボードの1行。
type Entry struct {
	Rank          int
	ParticipantID string
	DisplayName   string
	ResponseScore int
	ShareCount    int
	TotalScore    int
}

// RankScores はスコアをtotal_score降順、作成日時昇順、参加者ID昇順で並べ、
// 1始まりの連番で順位を付ける。同点でも順位は共有しない。
func RankScores(scores []model.ScoreRecord) []Entry {
	sorted := make([]model.ScoreRecord, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ParticipantID < b.ParticipantID
	})

	entries := make([]Entry, len(sorted))
	for i, s := range sorted {
		entries[i] = Entry{
			Rank:          i + 1,
			ParticipantID: s.ParticipantID,
			DisplayName:   s.DisplayName,
			ResponseScore: s.ResponseScore,
			ShareCount:    s.ShareCount,
			TotalScore:    s.ResponseScore + s.ShareCount,
		}
	}
	return entries
}
