package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/wordcloud/internal/metrics"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
	"github.com/hitoshi/wordcloud/internal/security"
	"github.com/hitoshi/wordcloud/internal/wordfreq"
)

// AugmentedParticipant は補完回答に付与する参加者ID。
const AugmentedParticipant = "augmented"

// MaxParticipantIDLength は参加者IDの最大文字数。
const MaxParticipantIDLength = 255

// GuestPrefix は未ログインの参加者IDに付与する接頭辞。
// メンバーIDとは別の名前空間に置く。
const GuestPrefix = "guest:"

// MaxPlayerIDLength は未ログイン参加者が指定できるplayer_idの最大文字数。
const MaxPlayerIDLength = MaxParticipantIDLength - len(GuestPrefix)

// MaxDisplayNameLength は表示名の最大文字数。
const MaxDisplayNameLength = 255

// Config は回答受付の設定。
type Config struct {
	// AugmentCount は補完モードのラウンドで1回答ごとに追加する補完語の数。
	AugmentCount int
	// MirrorToGlobal がtrueの場合、ラウンドの正規回答をグローバル集計にも加算する。
	MirrorToGlobal bool
}

// Participant は回答者を表す。
// MemberIDはログイン済みの場合のみ設定され、参加者IDとアカウントのポイント加算に使う。
// 未ログインの場合はIDにplayer_idを設定する。
type Participant struct {
	ID          string
	MemberID    string
	DisplayName string
}

// Result は受け付けた回答の結果。
type Result struct {
	Response  model.Response
	WordCount int
	Score     model.ScoreRecord
	Fillers   []string
}

// GlobalResult はグローバル集計への回答結果。
type GlobalResult struct {
	Word  string
	Count int
}

// Collector は回答受付のサービス層。
type Collector struct {
	repo    repository.ResponseRepository
	words   *wordfreq.Service
	metrics metrics.MetricsCollector
	names   *security.TextSanitizer
	config  Config
	now     func() time.Time
	fillers func(word string, n int) []string
}

// NewCollector はCollectorを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewCollector(
	repo repository.ResponseRepository,
	words *wordfreq.Service,
	collector metrics.MetricsCollector,
	config Config,
) *Collector {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.AugmentCount < 0 {
		config.AugmentCount = 0
	}
	return &Collector{
		repo:    repo,
		words:   words,
		metrics: collector,
		names:   security.NewTextSanitizer(MaxDisplayNameLength),
		config:  config,
		now:     time.Now,
		fillers: PickFillers,
	}
}

// Submit はラウンドへの回答を受け付ける。
// 回答の登録、単語頻度とスコアの更新、ポイント加算は単一トランザクションで行われる。
// 同一参加者の2回目の回答はDUPLICATE_RESPONSE、終了済みラウンドはROUND_INACTIVEを返す。
func (c *Collector) Submit(ctx context.Context, round *model.Round, p Participant, rawWord string) (*Result, error) {
	if !round.IsActive() {
		c.metrics.RecordResponse(metrics.OutcomeInactive)
		return nil, model.NewRoundInactiveError()
	}
	participantID, err := c.participantID(p)
	if err != nil {
		c.metrics.RecordResponse(metrics.OutcomeInvalid)
		return nil, err
	}
	displayName := c.names.Sanitize(p.DisplayName)
	if displayName == "" {
		displayName = c.names.Sanitize(p.ID)
	}
	if displayName == "" {
		displayName = participantID
	}

	word, err := NormalizeWord(rawWord)
	if err != nil {
		c.metrics.RecordResponse(metrics.OutcomeInvalid)
		return nil, err
	}

	now := c.now()
	params := repository.SubmitParams{
		Response: model.Response{
			ID:            uuid.New().String(),
			RoundID:       round.ID,
			ParticipantID: participantID,
			MemberID:      p.MemberID,
			Word:          word,
			CreatedAt:     now,
		},
		DisplayName: displayName,
		RoundScope:  wordfreq.RoundScope(round.ID),
	}
	if c.config.MirrorToGlobal {
		params.GlobalScope = wordfreq.GlobalScope
	}

	var fillers []string
	if round.Augment && c.config.AugmentCount > 0 {
		fillers = c.fillers(word, c.config.AugmentCount)
		for _, f := range fillers {
			params.Augmented = append(params.Augmented, model.Response{
				ID:            uuid.New().String(),
				RoundID:       round.ID,
				ParticipantID: AugmentedParticipant,
				Word:          f,
				IsAugmented:   true,
				CreatedAt:     now,
			})
		}
	}

	res, err := c.repo.Submit(ctx, params)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateResponse):
			c.metrics.RecordResponse(metrics.OutcomeDuplicate)
			return nil, model.NewDuplicateResponseError()
		case errors.Is(err, repository.ErrRoundNotActive):
			c.metrics.RecordResponse(metrics.OutcomeInactive)
			return nil, model.NewRoundInactiveError()
		case errors.Is(err, repository.ErrRoundNotFound):
			return nil, model.NewRoundNotFoundError(round.ID)
		}
		return nil, fmt.Errorf("回答の登録に失敗しました: %w", err)
	}

	c.metrics.RecordResponse(metrics.OutcomeAccepted)
	slog.Info("回答を受け付けました",
		slog.String("round_id", round.ID),
		slog.String("participant_id", participantID),
		slog.Int("word_count", res.WordCount),
		slog.Int("fillers", len(fillers)),
	)
	return &Result{
		Response:  res.Response,
		WordCount: res.WordCount,
		Score:     res.Score,
		Fillers:   fillers,
	}, nil
}

// participantID は回答者の参加者IDを決定する。
// ログイン済みの場合はメンバーID、未ログインの場合はplayer_idにGuestPrefixを付けた値を返す。
func (c *Collector) participantID(p Participant) (string, error) {
	if p.MemberID != "" {
		return p.MemberID, nil
	}
	if p.ID == "" {
		return "", model.NewValidationError("player_idを指定してください。")
	}
	if utf8.RuneCountInString(p.ID) > MaxPlayerIDLength || p.ID == AugmentedParticipant {
		return "", model.NewValidationError("player_idが不正です。")
	}
	return GuestPrefix + p.ID, nil
}

// SubmitGlobal はラウンドに属さない回答をグローバル集計に加算する。
// 参加者の重複制限やスコアは対象外。
func (c *Collector) SubmitGlobal(ctx context.Context, rawWord string) (*GlobalResult, error) {
	word, err := NormalizeWord(rawWord)
	if err != nil {
		return nil, err
	}
	count, err := c.words.Record(ctx, wordfreq.GlobalScope, word)
	if err != nil {
		return nil, err
	}
	return &GlobalResult{Word: word, Count: count}, nil
}
