package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/round"
	"github.com/hitoshi/wordcloud/internal/score"
)

// RoundServiceInterface はラウンドハンドラーが必要とするサービスインターフェース。
type RoundServiceInterface interface {
	Create(ctx context.Context, p round.CreateParams) (*model.Round, error)
	Get(ctx context.Context, ref string) (*model.Round, error)
	Details(ctx context.Context, ref string) (*round.Details, error)
	End(ctx context.Context, ref, requesterID string) (*model.Round, error)
	ShareURL(r *model.Round) string
	QRCode(r *model.Round, size int) ([]byte, error)
}

// ScoreServiceInterface はスコア集計のサービスインターフェース。
type ScoreServiceInterface interface {
	RecordShare(ctx context.Context, r *model.Round, participantID, displayName, platform string) (*model.ScoreRecord, error)
	Leaderboard(ctx context.Context, roundID string) ([]score.Entry, error)
}

// MemberResolver はセッションからメンバー情報を解決する。表示名の取得に使う。
type MemberResolver interface {
	Me(ctx context.Context, session *model.Session) (*model.MemberWithAccount, error)
}

// LiveHub はWebSocket購読の受け付けと配信を行うインターフェース。
type LiveHub interface {
	Publisher
	Serve(w http.ResponseWriter, r *http.Request, roundID string)
}

// RoundHandler はラウンドの作成・参照・シェア・終了のHTTPハンドラー。
type RoundHandler struct {
	rounds    RoundServiceInterface
	scores    ScoreServiceInterface
	members   MemberResolver
	live      LiveHub
	broadcast *roundBroadcaster
}

// NewRoundHandler はRoundHandlerを生成する。hubがnilの場合は配信を行わず、購読エンドポイントは503を返す。
func NewRoundHandler(
	rounds RoundServiceInterface,
	scores ScoreServiceInterface,
	words WordCloudServiceInterface,
	members MemberResolver,
	hub LiveHub,
) *RoundHandler {
	h := &RoundHandler{
		rounds:    rounds,
		scores:    scores,
		members:   members,
		broadcast: &roundBroadcaster{words: words, scores: scores},
	}
	if hub != nil {
		h.live = hub
		h.broadcast.publisher = hub
	}
	return h
}

type createRoundRequest struct {
	Question   string `json:"question"`
	QuestionID string `json:"question_id"`
	Augment    *bool  `json:"augment"`
}

type createRoundResponse struct {
	RoundID    string `json:"round_id"`
	ShareToken string `json:"share_token"`
	ShareURL   string `json:"share_url"`
	Question   string `json:"question"`
	Status     string `json:"status"`
	Augment    bool   `json:"augment"`
}

type roundResponse struct {
	ID             string     `json:"id"`
	QuestionID     string     `json:"question_id"`
	Question       string     `json:"question"`
	ShareToken     string     `json:"share_token"`
	ShareURL       string     `json:"share_url"`
	Status         string     `json:"status"`
	Augment        bool       `json:"augment"`
	CreatedBy      string     `json:"created_by,omitempty"`
	ResponseCount  int        `json:"response_count"`
	AugmentedCount int        `json:"augmented_count"`
	CreatedAt      time.Time  `json:"created_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

type shareRequest struct {
	Platform string `json:"platform"`
}

type scoreResponse struct {
	RoundID       string `json:"round_id"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	ResponseScore int    `json:"response_score"`
	ShareCount    int    `json:"share_count"`
	TotalScore    int    `json:"total_score"`
}

type leaderboardEntryResponse struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	ResponseScore int    `json:"response_score"`
	ShareCount    int    `json:"share_count"`
	TotalScore    int    `json:"total_score"`
}

type endRoundResponse struct {
	Round       roundResponse              `json:"round"`
	Leaderboard []leaderboardEntryResponse `json:"leaderboard"`
}

// CreateRound はお題を指定してラウンドを作成する。
// POST /api/create-round
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Question == "" && req.QuestionID == "" {
		middleware.WriteError(w, r, model.NewValidationError("questionまたはquestion_idを指定してください。"))
		return
	}

	created, err := h.rounds.Create(r.Context(), round.CreateParams{
		QuestionID:   req.QuestionID,
		QuestionText: req.Question,
		CreatorID:    middleware.MemberIDFromContext(r.Context()),
		Augment:      req.Augment,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRoundResponse{
		RoundID:    created.ID,
		ShareToken: created.ShareToken,
		ShareURL:   h.rounds.ShareURL(created),
		Question:   created.QuestionText,
		Status:     string(created.Status),
		Augment:    created.Augment,
	})
}

// GetRound はラウンドの詳細を返す。{id}はラウンドIDまたはシェアトークン。
// GET /api/round/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	details, err := h.rounds.Details(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoundResponse(details))
}

// Share はシェアを記録してスコアを加算する。
// POST /api/round/{id}/share
func (h *RoundHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	memberID := middleware.MemberIDFromContext(r.Context())
	if memberID == "" {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}

	record, err := h.scores.RecordShare(r.Context(), rd, memberID, h.displayName(r, memberID), req.Platform)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.broadcast.leaderboard(r.Context(), rd)
	writeJSON(w, http.StatusOK, toScoreResponse(record))
}

// Leaderboard はラウンドの順位表を返す。
// GET /api/round/{id}/leaderboard
func (h *RoundHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	entries, err := h.scores.Leaderboard(r.Context(), rd.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"round_id":    rd.ID,
		"leaderboard": toLeaderboardResponse(entries),
	})
}

// EndRound はラウンドを終了し、最終順位表を返す。作成者のみ実行できる。
// POST /api/round/{id}/end
func (h *RoundHandler) EndRound(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	ended, err := h.rounds.End(r.Context(), ref, middleware.MemberIDFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	details, err := h.rounds.Details(r.Context(), ended.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	entries, err := h.scores.Leaderboard(r.Context(), ended.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.broadcast.ended(ended, entries)
	writeJSON(w, http.StatusOK, endRoundResponse{
		Round:       toRoundResponse(details),
		Leaderboard: toLeaderboardResponse(entries),
	})
}

// QRCode はシェアURLのQRコードをPNGで返す。
// GET /api/round/{id}/qr?size=256
func (h *RoundHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	png, err := h.rounds.QRCode(rd, queryInt(r, "size", round.DefaultQRSize))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// Live はラウンドの更新をWebSocketで購読する。
// GET /api/round/{id}/live
func (h *RoundHandler) Live(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
			Code:     model.ErrCodeInternal,
			Message:  "リアルタイム配信は無効です。",
			Category: "system",
			Action:   "画面を再読み込みして最新の状態を確認してください。",
		})
		return
	}
	rd, err := h.rounds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	h.live.Serve(w, r, rd.ID)
}

// displayName はメンバーの表示名を返す。取得できない場合はメンバーIDを使う。
func (h *RoundHandler) displayName(r *http.Request, memberID string) string {
	return resolveDisplayName(r, h.members, memberID)
}

func resolveDisplayName(r *http.Request, members MemberResolver, memberID string) string {
	if members == nil {
		return memberID
	}
	member, err := members.Me(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil || member == nil {
		if err != nil {
			slog.Debug("表示名の取得に失敗しました", slog.String("error", err.Error()))
		}
		return memberID
	}
	if member.Name != "" {
		return member.Name
	}
	return member.Account.Username
}

func toRoundResponse(d *round.Details) roundResponse {
	return roundResponse{
		ID:             d.Round.ID,
		QuestionID:     d.Round.QuestionID,
		Question:       d.Round.QuestionText,
		ShareToken:     d.Round.ShareToken,
		ShareURL:       d.ShareURL,
		Status:         string(d.Round.Status),
		Augment:        d.Round.Augment,
		CreatedBy:      d.Round.CreatedBy,
		ResponseCount:  d.ResponseCount,
		AugmentedCount: d.AugmentedCount,
		CreatedAt:      d.Round.CreatedAt,
		EndedAt:        d.Round.EndedAt,
	}
}

func toScoreResponse(s *model.ScoreRecord) scoreResponse {
	return scoreResponse{
		RoundID:       s.RoundID,
		ParticipantID: s.ParticipantID,
		DisplayName:   s.DisplayName,
		ResponseScore: s.ResponseScore,
		ShareCount:    s.ShareCount,
		TotalScore:    s.TotalScore,
	}
}

func toLeaderboardResponse(entries []score.Entry) []leaderboardEntryResponse {
	out := make([]leaderboardEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = leaderboardEntryResponse{
			Rank:          e.Rank,
			ParticipantID: e.ParticipantID,
			DisplayName:   e.DisplayName,
			ResponseScore: e.ResponseScore,
			ShareCount:    e.ShareCount,
			TotalScore:    e.TotalScore,
		}
	}
	return out
}
