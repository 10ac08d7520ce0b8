package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
)

func TestComputeDeltas(t *testing.T) {
	fm := &models.FinalizedMatch{
		Positions: [models.SlotCount]string{"a", "b", "c", "d"},
		Sets:      []models.SetResult{{GamesSide1: 3, GamesSide2: 6}, {GamesSide1: 6, GamesSide2: 4}, {GamesSide1: 5, GamesSide2: 7}},
	}
	got, err := ComputeDeltas(fm)
	if err != nil {
		t.Fatalf("ComputeDeltas: %v", err)
	}
	want := []models.StatsDelta{
		{UserID: "a", Won: false},
		{UserID: "b", Won: false},
		{UserID: "c", Won: true},
		{UserID: "d", Won: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d deltas, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delta %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestComputeDeltasRejectsShortRoster(t *testing.T) {
	for i := 0; i < models.SlotCount; i++ {
		fm := &models.FinalizedMatch{
			Positions: [models.SlotCount]string{"a", "b", "c", "d"},
			Sets:      []models.SetResult{{GamesSide1: 6, GamesSide2: 0}, {GamesSide1: 6, GamesSide2: 0}},
		}
		fm.Positions[i] = ""
		got, err := ComputeDeltas(fm)
		if !errors.Is(err, ErrRosterIncomplete) {
			t.Fatalf("empty position %d: err = %v, want ErrRosterIncomplete", i, err)
		}
		if got != nil {
			t.Fatalf("empty position %d: got %d deltas, want none", i, len(got))
		}
	}
}

func TestStatisticsPosterApplyIsAtomic(t *testing.T) {
	store := repositories.NewMemoryStore()
	ctx := context.Background()
	ids := make([]string, 0, 4)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		u := &models.User{Name: email, Email: email}
		store.Users().Create(ctx, u)
		ids = append(ids, u.ID)
	}
	poster := NewStatisticsPoster(store.Users())

	fm := &models.FinalizedMatch{
		SourceMatchID: "m1",
		Positions:     [models.SlotCount]string{ids[0], ids[1], ids[2], "missing"},
		Sets:          []models.SetResult{{GamesSide1: 6, GamesSide2: 0}, {GamesSide1: 6, GamesSide2: 0}},
	}
	if err := poster.Apply(ctx, nil, fm); !errors.Is(err, repositories.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	for _, id := range ids {
		u, _ := store.Users().GetByID(ctx, id)
		if u.MatchesPlayed != 0 {
			t.Fatalf("user %s credited despite failed batch", id)
		}
	}

	fm.Positions[3] = ids[3]
	fm.Positions[2] = ""
	if err := poster.Apply(ctx, nil, fm); !errors.Is(err, ErrRosterIncomplete) {
		t.Fatalf("short roster: err = %v, want ErrRosterIncomplete", err)
	}
	for _, id := range ids {
		u, _ := store.Users().GetByID(ctx, id)
		if u.MatchesPlayed != 0 {
			t.Fatalf("user %s credited from a short roster", id)
		}
	}

	fm.Positions[2] = ids[2]
	if err := poster.Apply(ctx, nil, fm); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, id := range ids[2:] {
		u, _ := store.Users().GetByID(ctx, id)
		if u.MatchesPlayed != 1 || u.MatchesLost != 1 || u.MatchesWon != 0 {
			t.Fatalf("side 2 player stats = %+v", u)
		}
	}
	u, _ := store.Users().GetByID(ctx, ids[0])
	if u.MatchesPlayed != 1 || u.MatchesWon != 1 {
		t.Fatalf("side 1 player stats = %+v", u)
	}
}
