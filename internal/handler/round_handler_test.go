package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/round"
	"github.com/hitoshi/wordcloud/internal/score"
	"github.com/hitoshi/wordcloud/internal/wordfreq"
)

// mockRoundService はRoundServiceInterfaceのモック実装。
type mockRoundService struct {
	getFn func(ctx context.Context, ref string) (*model.Round, error)
}

func (m *mockRoundService) Create(context.Context, round.CreateParams) (*model.Round, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRoundService) Get(ctx context.Context, ref string) (*model.Round, error) {
	return m.getFn(ctx, ref)
}

func (m *mockRoundService) Details(context.Context, string) (*round.Details, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRoundService) End(context.Context, string, string) (*model.Round, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRoundService) ShareURL(r *model.Round) string { return "https://example.com/respond/" + r.ShareToken }

func (m *mockRoundService) QRCode(*model.Round, int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

// mockScoreService はScoreServiceInterfaceのモック実装。
type mockScoreService struct {
	recordShareFn func(ctx context.Context, r *model.Round, participantID, displayName, platform string) (*model.ScoreRecord, error)
	leaderboardFn func(ctx context.Context, roundID string) ([]score.Entry, error)
}

func (m *mockScoreService) RecordShare(ctx context.Context, r *model.Round, participantID, displayName, platform string) (*model.ScoreRecord, error) {
	return m.recordShareFn(ctx, r, participantID, displayName, platform)
}

func (m *mockScoreService) Leaderboard(ctx context.Context, roundID string) ([]score.Entry, error) {
	return m.leaderboardFn(ctx, roundID)
}

type stubCloud struct{}

func (stubCloud) Cloud(context.Context, string, int) ([]wordfreq.CloudWord, error) {
	return []wordfreq.CloudWord{}, nil
}

func withRoundParam(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func activeRound() *model.Round {
	return &model.Round{ID: "r1", ShareToken: "tok", Status: model.RoundStatusActive, CreatedBy: "mem-1"}
}

func TestRoundHandler_Share_UsesMemberAndPlatform(t *testing.T) {
	rounds := &mockRoundService{getFn: func(ctx context.Context, ref string) (*model.Round, error) {
		if ref != "tok" {
			t.Errorf("ref = %q, want tok", ref)
		}
		return activeRound(), nil
	}}
	scores := &mockScoreService{
		recordShareFn: func(ctx context.Context, r *model.Round, participantID, displayName, platform string) (*model.ScoreRecord, error) {
			if participantID != "mem-2" || platform != "twitter" {
				t.Errorf("participant/platform = %q/%q", participantID, platform)
			}
			if displayName != "mem-2" {
				t.Errorf("displayName = %q, want member id fallback", displayName)
			}
			return &model.ScoreRecord{RoundID: r.ID, ParticipantID: participantID, ShareCount: 1, TotalScore: 1}, nil
		},
		leaderboardFn: func(ctx context.Context, roundID string) ([]score.Entry, error) { return nil, nil },
	}
	h := NewRoundHandler(rounds, scores, stubCloud{}, nil, nil)

	req := withRoundParam(postJSON("/api/round/tok/share", `{"platform":"twitter"}`), "tok")
	req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{ID: "s", MemberID: "mem-2"}))
	w := httptest.NewRecorder()
	h.Share(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRoundHandler_Share_SessionWithoutMember(t *testing.T) {
	rounds := &mockRoundService{getFn: func(ctx context.Context, ref string) (*model.Round, error) {
		return activeRound(), nil
	}}
	h := NewRoundHandler(rounds, &mockScoreService{}, stubCloud{}, nil, nil)

	req := withRoundParam(httptest.NewRequest(http.MethodPost, "/api/round/r1/share", nil), "r1")
	req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{ID: "s"}))
	w := httptest.NewRecorder()
	h.Share(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRoundHandler_Leaderboard_ServiceError(t *testing.T) {
	rounds := &mockRoundService{getFn: func(ctx context.Context, ref string) (*model.Round, error) {
		return activeRound(), nil
	}}
	scores := &mockScoreService{
		leaderboardFn: func(ctx context.Context, roundID string) ([]score.Entry, error) {
			return nil, errors.New("pq: connection reset")
		},
	}
	h := NewRoundHandler(rounds, scores, stubCloud{}, nil, nil)

	w := httptest.NewRecorder()
	h.Leaderboard(w, withRoundParam(httptest.NewRequest(http.MethodGet, "/api/round/r1/leaderboard", nil), "r1"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRoundHandler_Live_DisabledWithoutHub(t *testing.T) {
	h := NewRoundHandler(&mockRoundService{}, &mockScoreService{}, stubCloud{}, nil, nil)

	w := httptest.NewRecorder()
	h.Live(w, withRoundParam(httptest.NewRequest(http.MethodGet, "/api/round/r1/live", nil), "r1"))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRoundHandler_Live_UnknownRound(t *testing.T) {
	rounds := &mockRoundService{getFn: func(ctx context.Context, ref string) (*model.Round, error) {
		return nil, model.NewRoundNotFoundError(ref)
	}}
	hub := &recordingHub{}
	h := NewRoundHandler(rounds, &mockScoreService{}, stubCloud{}, nil, hub)

	w := httptest.NewRecorder()
	h.Live(w, withRoundParam(httptest.NewRequest(http.MethodGet, "/api/round/x/live", nil), "x"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(pingFunc(func(context.Context) error { return nil }))(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("down") }))(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }
