package score

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wordcloud/internal/metrics"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
)

// DefaultPlatform は未指定・未知のシェア先を置き換える値。
const DefaultPlatform = "copy"

var platforms = map[string]bool{
	"copy":     true,
	"whatsapp": true,
	"facebook": true,
	"twitter":  true,
	"email":    true,
}

// NormalizePlatform はシェア先を小文字化し、未知の値はDefaultPlatformに置き換える。
func NormalizePlatform(platform string) string {
	p := strings.ToLower(strings.TrimSpace(platform))
	if platforms[p] {
		return p
	}
	return DefaultPlatform
}

// Service はスコア集計のサービス層。
type Service struct {
	repo    repository.ScoreRepository
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(repo repository.ScoreRepository, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{repo: repo, metrics: collector, now: time.Now}
}

// RecordShare はシェアイベントを記録し、参加者のshare_countを1加算する。
// 終了済みラウンドへのシェアは受け付けない。
func (s *Service) RecordShare(ctx context.Context, round *model.Round, participantID, displayName, platform string) (*model.ScoreRecord, error) {
	if participantID == "" {
		return nil, model.NewValidationError("参加者IDが必要です。")
	}
	if !round.IsActive() {
		return nil, model.NewRoundInactiveError()
	}

	platform = NormalizePlatform(platform)
	record, err := s.repo.RecordShare(ctx, repository.ShareParams{
		Event: model.ShareEvent{
			ID:            uuid.New().String(),
			RoundID:       round.ID,
			ParticipantID: participantID,
			Platform:      platform,
			CreatedAt:     s.now(),
		},
		DisplayName: displayName,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRoundNotActive):
			return nil, model.NewRoundInactiveError()
		case errors.Is(err, repository.ErrRoundNotFound):
			return nil, model.NewRoundNotFoundError(round.ID)
		}
		return nil, fmt.Errorf("シェアの記録に失敗しました: %w", err)
	}

	s.metrics.RecordShare(platform)
	return record, nil
}

// RecordResponse は参加者のresponse_scoreを1に設定する。
// 既に1の場合は変化しない。
func (s *Service) RecordResponse(ctx context.Context, roundID, participantID, displayName string) (*model.ScoreRecord, error) {
	if participantID == "" {
		return nil, model.NewValidationError("参加者IDが必要です。")
	}
	record, err := s.repo.RecordResponse(ctx, roundID, participantID, displayName)
	if err != nil {
		return nil, fmt.Errorf("回答スコアの記録に失敗しました: %w", err)
	}
	return record, nil
}

// Leaderboard はラウンドの順位表を返す。
func (s *Service) Leaderboard(ctx context.Context, roundID string) ([]Entry, error) {
	scores, err := s.repo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("スコア一覧の取得に失敗しました: %w", err)
	}
	return RankScores(scores), nil
}
