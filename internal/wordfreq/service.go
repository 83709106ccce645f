package wordfreq

import (
	"context"
	"fmt"

	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
)

// GlobalScope はラウンドに属さない単語集計のスコープ。
const GlobalScope = "global"

// 上位単語取得の件数。
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// RoundScope はラウンド単位の集計スコープを返す。
func RoundScope(roundID string) string {
	return "round:" + roundID
}

// Service は単語頻度の集計サービス。
type Service struct {
	repo repository.WordFrequencyRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.WordFrequencyRepository) *Service {
	return &Service{repo: repo}
}

// Record は正規化済みの単語をスコープに1回分加算し、加算後の回数を返す。
func (s *Service) Record(ctx context.Context, scope, word string) (int, error) {
	if word == "" {
		return 0, model.NewInvalidWordError("空の単語は集計できません")
	}
	count, err := s.repo.Increment(ctx, scope, word)
	if err != nil {
		return 0, fmt.Errorf("単語頻度の加算に失敗しました: %w", err)
	}
	return count, nil
}

// TopWords はスコープ内の上位単語を返す。
// limitが0以下の場合はDefaultLimit、MaxLimitを超える場合はMaxLimitに丸める。
func (s *Service) TopWords(ctx context.Context, scope string, limit int) ([]model.WordCount, error) {
	limit = clampLimit(limit)
	words, err := s.repo.Top(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("上位単語の取得に失敗しました: %w", err)
	}
	Rank(words)
	if len(words) > limit {
		words = words[:limit]
	}
	return words, nil
}

// Cloud はスコープ内の上位単語を表示用に整形して返す。
func (s *Service) Cloud(ctx context.Context, scope string, limit int) ([]CloudWord, error) {
	words, err := s.TopWords(ctx, scope, limit)
	if err != nil {
		return nil, err
	}
	return Layout(words), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
