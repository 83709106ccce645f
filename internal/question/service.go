// Package question はお題の一覧と登録を提供する。
package question

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
	"github.com/hitoshi/wordcloud/internal/security"
)

// 一覧取得の件数。
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// MaxTextLength はお題本文の最大文字数。
const MaxTextLength = 255

// Service はお題管理のサービス層。
type Service struct {
	repo      repository.QuestionRepository
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.QuestionRepository) *Service {
	return &Service{
		repo:      repo,
		sanitizer: security.NewTextSanitizer(MaxTextLength),
		now:       time.Now,
	}
}

// List は新しい順にお題を返す。
func (s *Service) List(ctx context.Context, limit int) ([]*model.Question, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	questions, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("お題一覧の取得に失敗しました: %w", err)
	}
	if questions == nil {
		questions = []*model.Question{}
	}
	return questions, nil
}

// Create は手入力のお題を登録する。同一本文のお題がある場合はそれを返す。
func (s *Service) Create(ctx context.Context, text string) (*model.Question, error) {
	text = s.sanitizer.Sanitize(text)
	if text == "" {
		return nil, model.NewValidationError("お題を入力してください。")
	}
	q, err := s.repo.FindOrCreateByText(ctx, text, model.QuestionSourceManual)
	if err != nil {
		return nil, fmt.Errorf("お題の登録に失敗しました: %w", err)
	}
	return q, nil
}

// Import はフィードから取り込んだお題を登録する。
// 同一本文が既にある場合は登録せずfalseを返す。
func (s *Service) Import(ctx context.Context, rawText string) (bool, error) {
	text := s.sanitizer.Sanitize(rawText)
	if text == "" {
		return false, nil
	}
	created, err := s.repo.CreateIfAbsent(ctx, &model.Question{
		ID:        uuid.New().String(),
		Text:      text,
		Source:    model.QuestionSourceFeed,
		CreatedAt: s.now(),
	})
	if err != nil {
		return false, fmt.Errorf("お題の取り込みに失敗しました: %w", err)
	}
	return created, nil
}
