package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/question"
)

// QuestionServiceInterface はお題一覧・登録のサービスインターフェース。
type QuestionServiceInterface interface {
	List(ctx context.Context, limit int) ([]*model.Question, error)
	Create(ctx context.Context, text string) (*model.Question, error)
}

// QuestionHandler はお題のHTTPハンドラー。
type QuestionHandler struct {
	service QuestionServiceInterface
}

// NewQuestionHandler はQuestionHandlerを生成する。
func NewQuestionHandler(service QuestionServiceInterface) *QuestionHandler {
	return &QuestionHandler{service: service}
}

type questionResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type createQuestionRequest struct {
	Text string `json:"text"`
}

// List はお題を新しい順に返す。
// GET /api/questions?limit=100
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.List(r.Context(), queryInt(r, "limit", question.DefaultListLimit))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	out := make([]questionResponse, len(questions))
	for i, q := range questions {
		out[i] = toQuestionResponse(q)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": out})
}

// Create はお題を登録する。同じ文面のお題が既にあればそれを返す。
// POST /api/questions
func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.service.Create(r.Context(), req.Text)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuestionResponse(q))
}

func toQuestionResponse(q *model.Question) questionResponse {
	return questionResponse{
		ID:        q.ID,
		Text:      q.Text,
		Source:    string(q.Source),
		CreatedAt: q.CreatedAt,
	}
}
