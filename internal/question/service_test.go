package question

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/wordcloud/internal/model"
)

// --- モック ---

type mockQuestionRepo struct {
	listFn               func(ctx context.Context, limit int) ([]*model.Question, error)
	findOrCreateByTextFn func(ctx context.Context, text string, source model.QuestionSource) (*model.Question, error)
	created              []*model.Question
}

func (m *mockQuestionRepo) FindByID(_ context.Context, _ string) (*model.Question, error) {
	return nil, nil
}

func (m *mockQuestionRepo) FindOrCreateByText(ctx context.Context, text string, source model.QuestionSource) (*model.Question, error) {
	if m.findOrCreateByTextFn != nil {
		return m.findOrCreateByTextFn(ctx, text, source)
	}
	return &model.Question{ID: "q1", Text: text, Source: source}, nil
}

func (m *mockQuestionRepo) CreateIfAbsent(_ context.Context, q *model.Question) (bool, error) {
	for _, existing := range m.created {
		if existing.Text == q.Text {
			return false, nil
		}
	}
	m.created = append(m.created, q)
	return true, nil
}

func (m *mockQuestionRepo) List(ctx context.Context, limit int) ([]*model.Question, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit)
	}
	return nil, nil
}

func TestList_ClampsLimit(t *testing.T) {
	var got int
	repo := &mockQuestionRepo{
		listFn: func(_ context.Context, limit int) ([]*model.Question, error) {
			got = limit
			return nil, nil
		},
	}
	svc := NewService(repo)
	ctx := context.Background()

	tests := []struct{ in, want int }{
		{0, DefaultListLimit},
		{-1, DefaultListLimit},
		{10, 10},
		{100000, MaxListLimit},
	}
	for _, tt := range tests {
		questions, err := svc.List(ctx, tt.in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if questions == nil {
			t.Error("expected empty non-nil slice")
		}
		if got != tt.want {
			t.Errorf("List(%d) used limit %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestList_RepositoryError(t *testing.T) {
	repo := &mockQuestionRepo{
		listFn: func(_ context.Context, _ int) ([]*model.Question, error) {
			return nil, errors.New("db error")
		},
	}
	if _, err := NewService(repo).List(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreate_SanitizesText(t *testing.T) {
	svc := NewService(&mockQuestionRepo{})

	q, err := svc.Create(context.Background(), "<em>Best</em>  snack?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Text != "Best snack?" || q.Source != model.QuestionSourceManual {
		t.Errorf("unexpected question: %+v", q)
	}

	_, err = svc.Create(context.Background(), "   ")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestImport_SkipsDuplicatesAndEmpty(t *testing.T) {
	repo := &mockQuestionRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Import(ctx, "What inspires you?")
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	created, err = svc.Import(ctx, "<p>What inspires   you?</p>")
	if err != nil || created {
		t.Errorf("expected duplicate skipped, got %v %v", created, err)
	}
	created, err = svc.Import(ctx, "<br/>")
	if err != nil || created {
		t.Errorf("expected empty skipped, got %v %v", created, err)
	}

	if len(repo.created) != 1 || repo.created[0].Source != model.QuestionSourceFeed {
		t.Errorf("unexpected stored questions: %+v", repo.created)
	}
}
