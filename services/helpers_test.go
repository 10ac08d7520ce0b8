package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
)

var baseTime = time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMirror struct {
	mu   sync.Mutex
	puts []*models.FinalizedMatch
	err  error
}

func (m *recordingMirror) Put(ctx context.Context, fm *models.FinalizedMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, fm)
	return m.err
}

type testEnv struct {
	store   *repositories.MemoryStore
	clock   *fakeClock
	view    *MatchView
	matches MatchService
	lc      *LifecycleClock
	mirror  *recordingMirror
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	clock := &fakeClock{now: baseTime}
	view := NewMatchView()
	mirror := &recordingMirror{}
	logger := discardLogger()

	svc := NewMatchService(store.Matches(), store.Finalized(), store.Users(), store.Transactor(), view, MatchServiceOptions{
		Now:    clock.Now,
		Logger: logger,
		Mirror: mirror,
	})
	return &testEnv{
		store:   store,
		clock:   clock,
		view:    view,
		matches: svc,
		lc:      NewLifecycleClock(store.Matches(), view, time.Second, clock.Now, logger),
		mirror:  mirror,
	}
}

// addUsers creates n users and returns their ids.
func (e *testEnv) addUsers(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u := &models.User{Name: fmt.Sprintf("player %d", i), Email: fmt.Sprintf("p%d-%d@example.com", i, time.Now().UnixNano())}
		if err := e.store.Users().Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}

// fullMatch creates a match by players[0] and fills the other slots.
func (e *testEnv) fullMatch(t *testing.T, players []string, at time.Time) *models.Match {
	t.Helper()
	ctx := context.Background()
	m, err := e.matches.Create(ctx, players[0], "Club Central", at)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := e.matches.Join(ctx, m.ID, p); err != nil {
			t.Fatalf("Join %s: %v", p, err)
		}
	}
	got, err := e.store.Matches().GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return got
}
