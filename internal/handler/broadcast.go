package handler

import (
	"context"
	"log/slog"

	"github.com/hitoshi/wordcloud/internal/live"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/score"
	"github.com/hitoshi/wordcloud/internal/wordfreq"
)

// Publisher はラウンドの購読者へメッセージを配信するインターフェース。
type Publisher interface {
	Publish(roundID, msgType string, payload interface{})
}

// roundBroadcaster はラウンドの最新状態を取得して購読者へ配信する。
// publisherがnilの場合は何もしない。
type roundBroadcaster struct {
	publisher Publisher
	words     WordCloudServiceInterface
	scores    ScoreServiceInterface
}

// wordCloud はラウンドのワードクラウドを配信する。
func (b *roundBroadcaster) wordCloud(ctx context.Context, round *model.Round) {
	if b.publisher == nil {
		return
	}
	cloud, err := b.words.Cloud(ctx, wordfreq.RoundScope(round.ID), wordfreq.DefaultLimit)
	if err != nil {
		slog.Warn("ワードクラウドの配信に失敗しました",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.publisher.Publish(round.ID, live.TypeWordCloud, toCloudResponse(cloud))
}

// leaderboard はラウンドのリーダーボードを配信する。
func (b *roundBroadcaster) leaderboard(ctx context.Context, round *model.Round) {
	if b.publisher == nil {
		return
	}
	entries, err := b.scores.Leaderboard(ctx, round.ID)
	if err != nil {
		slog.Warn("リーダーボードの配信に失敗しました",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.publisher.Publish(round.ID, live.TypeLeaderboard, toLeaderboardResponse(entries))
}

// ended はラウンド終了と最終リーダーボードを配信する。
func (b *roundBroadcaster) ended(round *model.Round, entries []score.Entry) {
	if b.publisher == nil {
		return
	}
	b.publisher.Publish(round.ID, live.TypeRoundEnded, map[string]interface{}{
		"round_id":    round.ID,
		"leaderboard": toLeaderboardResponse(entries),
	})
}
