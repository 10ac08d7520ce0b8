package services

import (
	"testing"
	"time"

	"github.com/Dosada05/padel-system/models"
)

func TestMatchViewSnapshotIsOrderedCopy(t *testing.T) {
	v := NewMatchView()
	late := &models.Match{ID: "b", ScheduledTime: baseTime.Add(2 * time.Hour)}
	early := &models.Match{ID: "c", ScheduledTime: baseTime}
	tie := &models.Match{ID: "a", ScheduledTime: baseTime}
	v.ApplySnapshot([]*models.Match{late, early, tie})

	snap := v.Snapshot()
	if len(snap) != 3 || snap[0].ID != "a" || snap[1].ID != "c" || snap[2].ID != "b" {
		t.Fatalf("unexpected order: %s %s %s", snap[0].ID, snap[1].ID, snap[2].ID)
	}

	snap[0].Location = "mutated"
	if got, _ := v.Get("a"); got.Location == "mutated" {
		t.Fatalf("snapshot shares memory with the view")
	}

	v.Drop("a")
	if _, ok := v.Get("a"); ok || v.Len() != 2 {
		t.Fatalf("Drop did not remove the entry")
	}
	v.ApplySnapshot(nil)
	if v.Len() != 0 {
		t.Fatalf("ApplySnapshot(nil) left %d entries", v.Len())
	}
}
