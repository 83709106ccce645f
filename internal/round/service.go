package round

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/hitoshi/wordcloud/internal/metrics"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
	"github.com/hitoshi/wordcloud/internal/security"
)

// maxTokenAttempts はシェアトークン衝突時の最大試行回数。
const maxTokenAttempts = 5

// MaxQuestionLength はお題本文の最大文字数。
const MaxQuestionLength = 255

// 生成するQRコードのサイズ範囲（px）。
const (
	DefaultQRSize = 256
	MinQRSize     = 64
	MaxQRSize     = 1024
)

// Config はラウンドサービスの設定。
type Config struct {
	BaseURL        string // シェアURLの基点（例: https://wordcloud.example.com）
	DefaultAugment bool   // 作成時に指定がない場合の補完回答モード
}

// CreateParams はラウンド作成の入力値。
// QuestionIDとQuestionTextのどちらか一方を指定する。
type CreateParams struct {
	QuestionID   string
	QuestionText string
	CreatorID    string
	Augment      *bool
}

// Details はラウンドと回答数をまとめた参照結果。
type Details struct {
	Round          model.Round
	ResponseCount  int
	AugmentedCount int
	ShareURL       string
}

// Service はラウンド管理のサービス層。
type Service struct {
	rounds    repository.RoundRepository
	questions repository.QuestionRepository
	responses repository.ResponseRepository
	sanitizer *security.TextSanitizer
	metrics   metrics.MetricsCollector
	config    Config
	now       func() time.Time
	newToken  func() (string, error)
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	rounds repository.RoundRepository,
	questions repository.QuestionRepository,
	responses repository.ResponseRepository,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		rounds:    rounds,
		questions: questions,
		responses: responses,
		sanitizer: security.NewTextSanitizer(MaxQuestionLength),
		metrics:   collector,
		config:    config,
		now:       time.Now,
		newToken:  NewShareToken,
	}
}

// Create はお題を解決してラウンドを作成する。
// シェアトークンが衝突した場合は新しいトークンで再試行する。
func (s *Service) Create(ctx context.Context, p CreateParams) (*model.Round, error) {
	if p.CreatorID == "" {
		return nil, model.NewUnauthorizedError()
	}

	question, err := s.resolveQuestion(ctx, p.QuestionID, p.QuestionText)
	if err != nil {
		return nil, err
	}

	augment := s.config.DefaultAugment
	if p.Augment != nil {
		augment = *p.Augment
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, err
		}
		round := &model.Round{
			ID:           uuid.New().String(),
			QuestionID:   question.ID,
			QuestionText: question.Text,
			CreatedBy:    p.CreatorID,
			ShareToken:   token,
			Status:       model.RoundStatusActive,
			Augment:      augment,
			CreatedAt:    s.now(),
		}

		err = s.rounds.Create(ctx, round)
		if errors.Is(err, repository.ErrDuplicateShareToken) {
			slog.Warn("シェアトークンが衝突したため再生成します", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ラウンドの作成に失敗しました: %w", err)
		}

		s.metrics.RecordRoundCreated()
		slog.Info("ラウンドを作成しました",
			slog.String("round_id", round.ID),
			slog.String("question_id", question.ID),
			slog.String("created_by", p.CreatorID),
		)
		return round, nil
	}
	return nil, fmt.Errorf("シェアトークンの生成が%d回衝突しました", maxTokenAttempts)
}

// resolveQuestion は既存のお題IDまたは本文からお題を取得する。
// 本文指定の場合はサニタイズ後、同一本文のお題があれば再利用する。
func (s *Service) resolveQuestion(ctx context.Context, questionID, text string) (*model.Question, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID != "" {
		if _, err := uuid.Parse(questionID); err != nil {
			return nil, model.NewQuestionNotFoundError(questionID)
		}
		q, err := s.questions.FindByID(ctx, questionID)
		if err != nil {
			return nil, fmt.Errorf("お題の取得に失敗しました: %w", err)
		}
		if q == nil {
			return nil, model.NewQuestionNotFoundError(questionID)
		}
		return q, nil
	}

	text = s.sanitizer.Sanitize(text)
	if text == "" {
		return nil, model.NewValidationError("お題を指定してください。")
	}
	q, err := s.questions.FindOrCreateByText(ctx, text, model.QuestionSourceManual)
	if err != nil {
		return nil, fmt.Errorf("お題の登録に失敗しました: %w", err)
	}
	return q, nil
}

// Get はラウンドIDまたはシェアトークンでラウンドを取得する。
// UUIDとして解釈できる場合はIDとして、それ以外はシェアトークンとして検索する。
func (s *Service) Get(ctx context.Context, ref string) (*model.Round, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, model.NewRoundNotFoundError(ref)
	}

	var (
		round *model.Round
		err   error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		round, err = s.rounds.FindByID(ctx, ref)
	} else {
		round, err = s.rounds.FindByShareToken(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("ラウンドの取得に失敗しました: %w", err)
	}
	if round == nil {
		return nil, model.NewRoundNotFoundError(ref)
	}
	return round, nil
}

// Details はラウンドと回答数、シェアURLを返す。
func (s *Service) Details(ctx context.Context, ref string) (*Details, error) {
	round, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	genuine, augmented, err := s.responses.CountByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("回答数の取得に失敗しました: %w", err)
	}
	return &Details{
		Round:          *round,
		ResponseCount:  genuine,
		AugmentedCount: augmented,
		ShareURL:       s.ShareURL(round),
	}, nil
}

// End はラウンドを終了する。作成者以外はForbiddenを返す。
// 既に終了済みのラウンドに対しては変更せず終了済みのラウンドを返す。
func (s *Service) End(ctx context.Context, ref, requesterID string) (*model.Round, error) {
	round, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if requesterID == "" || round.CreatedBy != requesterID {
		return nil, model.NewForbiddenError("ラウンドを終了できるのは作成者のみです。")
	}
	if !round.IsActive() {
		return round, nil
	}

	ended, err := s.rounds.End(ctx, round.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("ラウンドの終了に失敗しました: %w", err)
	}
	if ended == nil {
		return nil, model.NewRoundNotFoundError(ref)
	}

	s.metrics.RecordRoundEnded()
	slog.Info("ラウンドを終了しました",
		slog.String("round_id", ended.ID),
		slog.String("ended_by", requesterID),
	)
	return ended, nil
}

// ShareURL は回答ページのURLを返す。
func (s *Service) ShareURL(round *model.Round) string {
	return s.config.BaseURL + "/respond/" + round.ShareToken
}

// QRCode はシェアURLのQRコードをPNGで返す。
// sizeが範囲外の場合はDefaultQRSizeを使用する。
func (s *Service) QRCode(round *model.Round, size int) ([]byte, error) {
	if size < MinQRSize || size > MaxQRSize {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(s.ShareURL(round), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("QRコードの生成に失敗しました: %w", err)
	}
	return png, nil
}
