package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/response"
	"github.com/hitoshi/wordcloud/internal/wordfreq"
)

// WordCloudServiceInterface はワードクラウド取得のサービスインターフェース。
type WordCloudServiceInterface interface {
	Cloud(ctx context.Context, scope string, limit int) ([]wordfreq.CloudWord, error)
}

// GlobalSubmitter はラウンドに属さない回答を受け付けるインターフェース。
type GlobalSubmitter interface {
	SubmitGlobal(ctx context.Context, rawWord string) (*response.GlobalResult, error)
}

// WordCloudHandler はワードクラウドとグローバル回答のHTTPハンドラー。
type WordCloudHandler struct {
	rounds    RoundServiceInterface
	words     WordCloudServiceInterface
	submitter GlobalSubmitter
}

// NewWordCloudHandler はWordCloudHandlerを生成する。
func NewWordCloudHandler(rounds RoundServiceInterface, words WordCloudServiceInterface, submitter GlobalSubmitter) *WordCloudHandler {
	return &WordCloudHandler{
		rounds:    rounds,
		words:     words,
		submitter: submitter,
	}
}

type cloudWordResponse struct {
	Text  string  `json:"text"`
	Count int     `json:"count"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
}

type submitAnswerRequest struct {
	Word string `json:"word"`
}

type submitAnswerResponse struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// RoundCloud はラウンドの単語頻度をワードクラウド形式で返す。
// GET /api/round/{id}/wordcloud?limit=50
func (h *WordCloudHandler) RoundCloud(w http.ResponseWriter, r *http.Request) {
	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	cloud, err := h.words.Cloud(r.Context(), wordfreq.RoundScope(rd.ID), queryInt(r, "limit", wordfreq.DefaultLimit))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"round_id": rd.ID,
		"question": rd.QuestionText,
		"status":   string(rd.Status),
		"words":    toCloudResponse(cloud),
	})
}

// GlobalCloud はグローバル集計のワードクラウドを返す。
// GET /api/wordcloud
func (h *WordCloudHandler) GlobalCloud(w http.ResponseWriter, r *http.Request) {
	cloud, err := h.words.Cloud(r.Context(), wordfreq.GlobalScope, queryInt(r, "limit", wordfreq.DefaultLimit))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"words": toCloudResponse(cloud),
	})
}

// SubmitAnswer はグローバル集計に1語を加算する。
// POST /api/submit-answer
func (h *WordCloudHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.submitter.SubmitGlobal(r.Context(), req.Word)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitAnswerResponse{
		Word:  result.Word,
		Count: result.Count,
	})
}

func toCloudResponse(cloud []wordfreq.CloudWord) []cloudWordResponse {
	out := make([]cloudWordResponse, len(cloud))
	for i, c := range cloud {
		out[i] = cloudWordResponse{
			Text:  c.Text,
			Count: c.Count,
			Size:  c.Size,
			Color: c.Color,
		}
	}
	return out
}
