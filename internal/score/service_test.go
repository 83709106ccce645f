package score

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
)

// --- モック ---

// memScoreRepo はround_scoresとshare_eventsをメモリ上で再現するモック。
type memScoreRepo struct {
	mu       sync.Mutex
	scores   map[string]*model.ScoreRecord
	order    []string
	events   []model.ShareEvent
	clock    time.Time
	shareErr error
}

func newMemScoreRepo() *memScoreRepo {
	return &memScoreRepo{
		scores: make(map[string]*model.ScoreRecord),
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memScoreRepo) row(roundID, participantID, displayName string) *model.ScoreRecord {
	key := roundID + "/" + participantID
	s, ok := m.scores[key]
	if !ok {
		m.clock = m.clock.Add(time.Second)
		s = &model.ScoreRecord{
			RoundID:       roundID,
			ParticipantID: participantID,
			DisplayName:   displayName,
			CreatedAt:     m.clock,
		}
		m.scores[key] = s
		m.order = append(m.order, key)
	}
	return s
}

func (m *memScoreRepo) RecordShare(_ context.Context, p repository.ShareParams) (*model.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shareErr != nil {
		return nil, m.shareErr
	}
	m.events = append(m.events, p.Event)
	s := m.row(p.Event.RoundID, p.Event.ParticipantID, p.DisplayName)
	s.ShareCount++
	s.TotalScore = s.ResponseScore + s.ShareCount
	out := *s
	return &out, nil
}

func (m *memScoreRepo) RecordResponse(_ context.Context, roundID, participantID, displayName string) (*model.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.row(roundID, participantID, displayName)
	s.ResponseScore = 1
	s.TotalScore = s.ResponseScore + s.ShareCount
	out := *s
	return &out, nil
}

func (m *memScoreRepo) ListByRound(_ context.Context, roundID string) ([]model.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ScoreRecord
	for _, key := range m.order {
		if s := m.scores[key]; s.RoundID == roundID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func activeRound(id string) *model.Round {
	return &model.Round{ID: id, Status: model.RoundStatusActive}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("expected code %s, got %s", code, apiErr.Code)
	}
}

func TestNormalizePlatform(t *testing.T) {
	tests := []struct{ in, want string }{
		{"whatsapp", "whatsapp"},
		{" Twitter ", "twitter"},
		{"email", "email"},
		{"", "copy"},
		{"myspace", "copy"},
	}
	for _, tt := range tests {
		if got := NormalizePlatform(tt.in); got != tt.want {
			t.Errorf("NormalizePlatform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRankScores_TieBreaking(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	scores := []model.ScoreRecord{
		{ParticipantID: "c", ResponseScore: 1, ShareCount: 0, CreatedAt: base.Add(3 * time.Second)},
		{ParticipantID: "b", ResponseScore: 1, ShareCount: 0, CreatedAt: base.Add(1 * time.Second)},
		{ParticipantID: "a", ResponseScore: 1, ShareCount: 2, CreatedAt: base.Add(5 * time.Second)},
		{ParticipantID: "d", ResponseScore: 1, ShareCount: 0, CreatedAt: base.Add(1 * time.Second)},
	}

	entries := RankScores(scores)

	want := []string{"a", "b", "d", "c"}
	for i, id := range want {
		if entries[i].ParticipantID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, entries[i].ParticipantID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}
}

// 任意の入力に対して降順・連番・合計値の不変条件を確認する
func TestRankScores_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for iter := 0; iter < 100; iter++ {
		n := rng.Intn(20)
		scores := make([]model.ScoreRecord, n)
		for i := range scores {
			resp := rng.Intn(2)
			shares := rng.Intn(5)
			scores[i] = model.ScoreRecord{
				ParticipantID: string(rune('a' + i)),
				ResponseScore: resp,
				ShareCount:    shares,
				TotalScore:    resp + shares,
				CreatedAt:     base.Add(time.Duration(rng.Intn(10)) * time.Second),
			}
		}

		entries := RankScores(scores)
		if len(entries) != n {
			t.Fatalf("expected %d entries, got %d", n, len(entries))
		}
		for i, e := range entries {
			if e.Rank != i+1 {
				t.Fatalf("expected rank %d, got %d", i+1, e.Rank)
			}
			if e.TotalScore != e.ResponseScore+e.ShareCount {
				t.Fatalf("total mismatch: %+v", e)
			}
			if i > 0 && entries[i-1].TotalScore < e.TotalScore {
				t.Fatalf("not sorted descending at %d: %d < %d", i, entries[i-1].TotalScore, e.TotalScore)
			}
		}
	}
}

func TestService_ResponseThenShareLeaderboard(t *testing.T) {
	repo := newMemScoreRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	round := activeRound("r1")

	if _, err := svc.RecordResponse(ctx, round.ID, "A", "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RecordResponse(ctx, round.ID, "B", "Bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := svc.RecordShare(ctx, round, "A", "Alice", "whatsapp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ShareCount != 1 || rec.TotalScore != 2 {
		t.Errorf("expected share_count=1 total=2, got %+v", rec)
	}
	if repo.events[0].Platform != "whatsapp" {
		t.Errorf("expected platform whatsapp, got %q", repo.events[0].Platform)
	}

	board, err := svc.Leaderboard(ctx, round.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].ParticipantID != "A" || board[0].TotalScore != 2 || board[0].Rank != 1 {
		t.Errorf("unexpected first entry: %+v", board[0])
	}
	if board[1].ParticipantID != "B" || board[1].TotalScore != 1 || board[1].Rank != 2 {
		t.Errorf("unexpected second entry: %+v", board[1])
	}
}

func TestService_RecordResponseIsIdempotent(t *testing.T) {
	repo := newMemScoreRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := svc.RecordResponse(ctx, "r1", "A", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.ResponseScore != 1 {
			t.Errorf("expected response_score 1, got %d", rec.ResponseScore)
		}
	}
}

func TestService_RecordShare_UnknownPlatformFallsBackToCopy(t *testing.T) {
	repo := newMemScoreRepo()
	svc := NewService(repo, nil)

	if _, err := svc.RecordShare(context.Background(), activeRound("r1"), "A", "", "carrier-pigeon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.events[0].Platform != DefaultPlatform {
		t.Errorf("expected %s, got %q", DefaultPlatform, repo.events[0].Platform)
	}
}

func TestService_RecordShare_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("ended round", func(t *testing.T) {
		svc := NewService(newMemScoreRepo(), nil)
		round := &model.Round{ID: "r1", Status: model.RoundStatusEnded}
		_, err := svc.RecordShare(ctx, round, "A", "", "copy")
		assertAPIErrorCode(t, err, model.ErrCodeRoundInactive)
	})

	t.Run("ended concurrently", func(t *testing.T) {
		repo := newMemScoreRepo()
		repo.shareErr = repository.ErrRoundNotActive
		svc := NewService(repo, nil)
		_, err := svc.RecordShare(ctx, activeRound("r1"), "A", "", "copy")
		assertAPIErrorCode(t, err, model.ErrCodeRoundInactive)
	})

	t.Run("missing participant", func(t *testing.T) {
		svc := NewService(newMemScoreRepo(), nil)
		_, err := svc.RecordShare(ctx, activeRound("r1"), "", "", "copy")
		assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := newMemScoreRepo()
		repo.shareErr = errors.New("connection reset")
		svc := NewService(repo, nil)
		_, err := svc.RecordShare(ctx, activeRound("r1"), "A", "", "copy")
		var apiErr *model.APIError
		if err == nil || errors.As(err, &apiErr) {
			t.Errorf("expected internal error, got %v", err)
		}
	})
}

func TestService_ConcurrentSharesAreNotLost(t *testing.T) {
	repo := newMemScoreRepo()
	svc := NewService(repo, nil)
	round := activeRound("r1")

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordShare(context.Background(), round, "A", "", "copy"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	board, err := svc.Leaderboard(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if board[0].ShareCount != n || board[0].TotalScore != n {
		t.Errorf("expected %d shares, got %+v", n, board[0])
	}
}
