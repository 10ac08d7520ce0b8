package services

import (
	"sort"
	"sync"

	"github.com/Dosada05/padel-system/models"
)

// MatchView - локальная копия текущих живых матчей, которую наполняет
// лента изменений. Все методы безопасны для конкурентного вызова;
// наружу отдаются только копии.
type MatchView struct {
	mu      sync.RWMutex
	matches map[string]*models.Match
}

func NewMatchView() *MatchView {
	return &MatchView{matches: make(map[string]*models.Match)}
}

// ApplySnapshot полностью заменяет содержимое представления.
func (v *MatchView) ApplySnapshot(matches []*models.Match) {
	next := make(map[string]*models.Match, len(matches))
	for _, m := range matches {
		next[m.ID] = m.Clone()
	}
	v.mu.Lock()
	v.matches = next
	v.mu.Unlock()
}

func (v *MatchView) Upsert(m *models.Match) {
	v.mu.Lock()
	v.matches[m.ID] = m.Clone()
	v.mu.Unlock()
}

func (v *MatchView) Drop(id string) {
	v.mu.Lock()
	delete(v.matches, id)
	v.mu.Unlock()
}

func (v *MatchView) Get(id string) (*models.Match, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	m, ok := v.matches[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (v *MatchView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.matches)
}

// Snapshot returns copies of all held matches ordered by scheduled time.
func (v *MatchView) Snapshot() []*models.Match {
	v.mu.RLock()
	out := make([]*models.Match, 0, len(v.matches))
	for _, m := range v.matches {
		out = append(out, m.Clone())
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}
