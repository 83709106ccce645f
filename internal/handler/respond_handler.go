package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/response"
)

// ResponseCollectorInterface はラウンドへの回答を受け付けるサービスインターフェース。
type ResponseCollectorInterface interface {
	Submit(ctx context.Context, r *model.Round, p response.Participant, rawWord string) (*response.Result, error)
}

// RespondHandler はシェアリンク経由の回答画面と回答送信のHTTPハンドラー。
type RespondHandler struct {
	rounds    RoundServiceInterface
	collector ResponseCollectorInterface
	members   MemberResolver
	broadcast *roundBroadcaster
}

// NewRespondHandler はRespondHandlerを生成する。hubがnilの場合は配信を行わない。
func NewRespondHandler(
	rounds RoundServiceInterface,
	collector ResponseCollectorInterface,
	scores ScoreServiceInterface,
	words WordCloudServiceInterface,
	members MemberResolver,
	hub Publisher,
) *RespondHandler {
	h := &RespondHandler{
		rounds:    rounds,
		collector: collector,
		members:   members,
		broadcast: &roundBroadcaster{words: words, scores: scores},
	}
	if hub != nil {
		h.broadcast.publisher = hub
	}
	return h
}

type respondRoundResponse struct {
	RoundID  string `json:"round_id"`
	Question string `json:"question"`
	Status   string `json:"status"`
	Active   bool   `json:"active"`
}

type submitRequest struct {
	Word        string `json:"word"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

type submitResponse struct {
	ResponseID string        `json:"response_id"`
	Word       string        `json:"word"`
	Count      int           `json:"count"`
	Score      scoreResponse `json:"score"`
	Augmented  []string      `json:"augmented,omitempty"`
}

// Show はシェアトークンに対応するラウンドのお題と状態を返す。
// GET /respond/{share_token}
func (h *RespondHandler) Show(w http.ResponseWriter, r *http.Request) {
	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "share_token"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondRoundResponse{
		RoundID:  rd.ID,
		Question: rd.QuestionText,
		Status:   string(rd.Status),
		Active:   rd.IsActive(),
	})
}

// Submit は回答を受け付ける。ログイン済みの場合はメンバーIDを参加者IDとして使い、
// 未ログインの場合はリクエストのplayer_idをゲスト用の名前空間で使う。
// POST /respond/{share_token}
func (h *RespondHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "share_token"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	p := response.Participant{ID: req.PlayerID, DisplayName: req.DisplayName}
	if memberID := middleware.MemberIDFromContext(r.Context()); memberID != "" {
		p.ID = memberID
		p.MemberID = memberID
		p.DisplayName = resolveDisplayName(r, h.members, memberID)
	}

	result, err := h.collector.Submit(r.Context(), rd, p, req.Word)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.broadcast.wordCloud(r.Context(), rd)
	h.broadcast.leaderboard(r.Context(), rd)

	writeJSON(w, http.StatusCreated, submitResponse{
		ResponseID: result.Response.ID,
		Word:       result.Response.Word,
		Count:      result.WordCount,
		Score:      toScoreResponse(&result.Score),
		Augmented:  result.Fillers,
	})
}
