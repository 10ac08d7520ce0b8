package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/google/uuid"
)

var errMemoryExec = errors.New("memory store transaction does not execute SQL")

// MemoryStore - хранилище в памяти с теми же гарантиями, что и Postgres:
// условные обновления атомарны, транзакции откатываются целиком.
// Используется драйвером STORAGE_DRIVER=memory и в тестах.
type MemoryStore struct {
	mu        sync.Mutex
	matches   map[string]*models.Match
	finalized map[string]*models.FinalizedMatch
	users     map[string]*models.User
	friends   map[string]*models.Friendship
	writes    int
	changes   chan struct{}
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:   make(map[string]*models.Match),
		finalized: make(map[string]*models.FinalizedMatch),
		users:     make(map[string]*models.User),
		friends:   make(map[string]*models.Friendship),
		changes:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

func (s *MemoryStore) Matches() MatchRepository { return &memoryMatches{s: s} }
func (s *MemoryStore) Finalized() FinalizedMatchRepository { return &memoryFinalized{s: s} }
func (s *MemoryStore) Users() UserRepository { return &memoryUsers{s: s} }
func (s *MemoryStore) Friendships() FriendshipRepository { return &memoryFriendships{s: s} }
func (s *MemoryStore) Transactor() Transactor { return s }
func (s *MemoryStore) Changes() <-chan struct{} { return s.changes }

// Writes returns the number of successful mutating operations so far.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type memoryTx struct{ s *MemoryStore }

func (memoryTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errMemoryExec
}

func (memoryTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errMemoryExec
}

func (memoryTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

type memorySnapshot struct {
	matches   map[string]*models.Match
	finalized map[string]*models.FinalizedMatch
	users     map[string]*models.User
	friends   map[string]*models.Friendship
	writes    int
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) (err error) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	defer func() {
		if p := recover(); p != nil {
			s.restoreLocked(snap)
			s.mu.Unlock()
			panic(p)
		}
		if err != nil {
			s.restoreLocked(snap)
		}
		s.mu.Unlock()
		if err == nil {
			s.notify()
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	err = fn(memoryTx{s: s})
	return err
}

// lock захватывает мьютекс, если вызов не идёт изнутри WithinTx этого же хранилища.
func (s *MemoryStore) lock(exec SQLExecutor) func() {
	if tx, ok := exec.(memoryTx); ok && tx.s == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) inTx(exec SQLExecutor) bool {
	tx, ok := exec.(memoryTx)
	return ok && tx.s == s
}

func (s *MemoryStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// changed фиксирует запись; вне транзакции сразу сигналит подписчикам.
func (s *MemoryStore) changed(exec SQLExecutor) {
	s.writes++
	if !s.inTx(exec) {
		s.notify()
	}
}

func (s *MemoryStore) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		matches:   make(map[string]*models.Match, len(s.matches)),
		finalized: make(map[string]*models.FinalizedMatch, len(s.finalized)),
		users:     make(map[string]*models.User, len(s.users)),
		friends:   make(map[string]*models.Friendship, len(s.friends)),
		writes:    s.writes,
	}
	for id, m := range s.matches {
		snap.matches[id] = m.Clone()
	}
	for id, fm := range s.finalized {
		snap.finalized[id] = cloneFinalized(fm)
	}
	for id, u := range s.users {
		c := *u
		snap.users[id] = &c
	}
	for id, f := range s.friends {
		c := *f
		snap.friends[id] = &c
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap memorySnapshot) {
	s.matches = snap.matches
	s.finalized = snap.finalized
	s.users = snap.users
	s.friends = snap.friends
	s.writes = snap.writes
}

func cloneFinalized(fm *models.FinalizedMatch) *models.FinalizedMatch {
	c := *fm
	c.Sets = append([]models.SetResult(nil), fm.Sets...)
	return &c
}

// --- matches ---

type memoryMatches struct{ s *MemoryStore }

func (r *memoryMatches) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	defer r.s.lock(exec)()
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = r.s.now()
	}
	r.s.matches[match.ID] = match.Clone()
	r.s.changed(exec)
	return nil
}

func (r *memoryMatches) GetByID(ctx context.Context, id string) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m.Clone(), nil
}

func (r *memoryMatches) List(ctx context.Context) ([]*models.Match, error) {
	return r.filter(nil, func(*models.Match) bool { return true }), nil
}

func (r *memoryMatches) ListByParticipant(ctx context.Context, userID string) ([]*models.Match, error) {
	return r.filter(nil, func(m *models.Match) bool { return m.SlotOf(userID) >= 0 }), nil
}

func (r *memoryMatches) ListByLocationWindow(ctx context.Context, exec SQLExecutor, locationKey string, from, to time.Time) ([]*models.Match, error) {
	return r.filter(exec, func(m *models.Match) bool {
		return NormalizeLocation(m.Location) == locationKey &&
			m.ScheduledTime.After(from) && m.ScheduledTime.Before(to)
	}), nil
}

// LockLocation: транзакция хранилища в памяти и так держит общий мьютекс.
func (r *memoryMatches) LockLocation(ctx context.Context, exec SQLExecutor, locationKey string) error {
	if !r.s.inTx(exec) {
		return errors.New("LockLocation: transaction required")
	}
	return nil
}

func (r *memoryMatches) filter(exec SQLExecutor, keep func(*models.Match) bool) []*models.Match {
	defer r.s.lock(exec)()
	out := make([]*models.Match, 0, len(r.s.matches))
	for _, m := range r.s.matches {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}

func (r *memoryMatches) ClaimSlot(ctx context.Context, id string, slot int, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok || slot < 0 || slot >= models.SlotCount {
		return false, nil
	}
	if m.IsFinished() || m.Positions[slot] != "" || m.SlotOf(userID) >= 0 {
		return false, nil
	}
	m.Positions[slot] = userID
	r.s.changed(nil)
	return true, nil
}

func (r *memoryMatches) ReleaseSlot(ctx context.Context, id string, slot int, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok || slot < 0 || slot >= models.SlotCount {
		return false, nil
	}
	if m.IsFinished() || m.Positions[slot] != userID || m.CreatorID == userID {
		return false, nil
	}
	m.Positions[slot] = ""
	r.s.changed(nil)
	return true, nil
}

func (r *memoryMatches) UpdateState(ctx context.Context, id string, from, to models.MatchState) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok || m.State != from || !m.RosterAllows(to) {
		return false, nil
	}
	m.State = to
	r.s.changed(nil)
	return true, nil
}

func (r *memoryMatches) Complete(ctx context.Context, exec SQLExecutor, id string, sets []models.SetResult, winningSide int) (bool, error) {
	defer r.s.lock(exec)()
	m, ok := r.s.matches[id]
	if !ok || m.State != models.StateInProgress || !m.IsFull() {
		return false, nil
	}
	m.State = models.StateCompleted
	m.Sets = append([]models.SetResult(nil), sets...)
	m.WinningSide = winningSide
	r.s.changed(exec)
	return true, nil
}

func (r *memoryMatches) DeleteUnfilled(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok || m.IsFinished() || m.IsFull() {
		return false, nil
	}
	delete(r.s.matches, id)
	r.s.changed(nil)
	return true, nil
}

func (r *memoryMatches) Delete(ctx context.Context, exec SQLExecutor, id string) error {
	defer r.s.lock(exec)()
	if _, ok := r.s.matches[id]; !ok {
		return ErrMatchNotFound
	}
	delete(r.s.matches, id)
	r.s.changed(exec)
	return nil
}

// --- finalized matches ---

type memoryFinalized struct{ s *MemoryStore }

func (r *memoryFinalized) Create(ctx context.Context, exec SQLExecutor, fm *models.FinalizedMatch) error {
	defer r.s.lock(exec)()
	if fm.ID == "" {
		fm.ID = uuid.NewString()
	}
	if fm.FinalizedAt.IsZero() {
		fm.FinalizedAt = r.s.now()
	}
	r.s.finalized[fm.ID] = cloneFinalized(fm)
	r.s.writes++
	return nil
}

func (r *memoryFinalized) GetByID(ctx context.Context, id string) (*models.FinalizedMatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fm, ok := r.s.finalized[id]
	if !ok {
		return nil, ErrFinalizedMatchNotFound
	}
	return cloneFinalized(fm), nil
}

func (r *memoryFinalized) ListByParticipant(ctx context.Context, userID string) ([]*models.FinalizedMatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	history := make([]*models.FinalizedMatch, 0)
	for _, fm := range r.s.finalized {
		for _, p := range fm.Positions {
			if p == userID {
				history = append(history, cloneFinalized(fm))
				break
			}
		}
	}
	sort.Slice(history, func(i, j int) bool {
		if history[i].ScheduledTime.Equal(history[j].ScheduledTime) {
			return history[i].ID < history[j].ID
		}
		return history[i].ScheduledTime.Before(history[j].ScheduledTime)
	})
	return history, nil
}

// --- users ---

type memoryUsers struct{ s *MemoryStore }

func (r *memoryUsers) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return ErrUserEmailConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Level == 0 {
		user.Level = models.MinLevel
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.s.now()
	}
	c := *user
	r.s.users[user.ID] = &c
	r.s.writes++
	return nil
}

func (r *memoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryUsers) IncrementStats(ctx context.Context, exec SQLExecutor, deltas []models.StatsDelta) error {
	defer r.s.lock(exec)()
	// Сначала проверяем всех, потом пишем: пачка применяется целиком.
	for _, d := range deltas {
		if _, ok := r.s.users[d.UserID]; !ok {
			return ErrUserNotFound
		}
	}
	for _, d := range deltas {
		u := r.s.users[d.UserID]
		u.MatchesPlayed++
		if d.Won {
			u.MatchesWon++
		} else {
			u.MatchesLost++
		}
	}
	if len(deltas) > 0 {
		r.s.writes++
	}
	return nil
}

func (r *memoryUsers) List(ctx context.Context, filter ListUsersFilter) ([]*models.User, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var only map[string]bool
	if filter.IDs != nil {
		only = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			only[id] = true
		}
	}

	r.s.mu.Lock()
	users := make([]*models.User, 0)
	for _, u := range r.s.users {
		if only != nil && !only[u.ID] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(u.Email, search) {
			continue
		}
		c := *u
		users = append(users, &c)
	}
	r.s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].Name == users[j].Name {
			return users[i].ID < users[j].ID
		}
		return users[i].Name < users[j].Name
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(users) {
			return []*models.User{}, nil
		}
		users = users[filter.Offset:]
	}
	if filter.Limit > 0 && len(users) > filter.Limit {
		users = users[:filter.Limit]
	}
	return users, nil
}

func (r *memoryUsers) UpdateProfile(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	u.Name = user.Name
	u.Level = user.Level
	u.AvatarURL = user.AvatarURL
	r.s.writes++
	return nil
}

// --- friendships ---

type memoryFriendships struct{ s *MemoryStore }

func (r *memoryFriendships) Create(ctx context.Context, f *models.Friendship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[f.RequesterID]; !ok {
		return ErrFriendshipUserInvalid
	}
	if _, ok := r.s.users[f.AddresseeID]; !ok {
		return ErrFriendshipUserInvalid
	}
	if r.pairLocked(f.RequesterID, f.AddresseeID) != nil {
		return ErrFriendshipExists
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FriendshipPending
	}
	now := r.s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	c := *f
	r.s.friends[f.ID] = &c
	r.s.writes++
	return nil
}

func (r *memoryFriendships) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.friends[id]
	if !ok {
		return nil, ErrFriendshipNotFound
	}
	c := *f
	return &c, nil
}

func (r *memoryFriendships) GetByPair(ctx context.Context, userA, userB string) (*models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f := r.pairLocked(userA, userB)
	if f == nil {
		return nil, ErrFriendshipNotFound
	}
	c := *f
	return &c, nil
}

func (r *memoryFriendships) pairLocked(userA, userB string) *models.Friendship {
	for _, f := range r.s.friends {
		if (f.RequesterID == userA && f.AddresseeID == userB) || (f.RequesterID == userB && f.AddresseeID == userA) {
			return f
		}
	}
	return nil
}

func (r *memoryFriendships) Transition(ctx context.Context, id string, from, to models.FriendshipStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.friends[id]
	if !ok || f.Status != from {
		return false, nil
	}
	f.Status = to
	f.UpdatedAt = r.s.now()
	r.s.writes++
	return true, nil
}

func (r *memoryFriendships) Reopen(ctx context.Context, id, requesterID, addresseeID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.friends[id]
	if !ok || !f.Closed() {
		return false, nil
	}
	f.RequesterID = requesterID
	f.AddresseeID = addresseeID
	f.Status = models.FriendshipPending
	f.UpdatedAt = r.s.now()
	r.s.writes++
	return true, nil
}

func (r *memoryFriendships) ListIncoming(ctx context.Context, userID string) ([]*models.Friendship, error) {
	r.s.mu.Lock()
	requests := make([]*models.Friendship, 0)
	for _, f := range r.s.friends {
		if f.AddresseeID == userID && f.Status == models.FriendshipPending {
			c := *f
			requests = append(requests, &c)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(requests, func(i, j int) bool {
		if requests[i].UpdatedAt.Equal(requests[j].UpdatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].UpdatedAt.Before(requests[j].UpdatedAt)
	})
	return requests, nil
}

func (r *memoryFriendships) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]string, 0)
	for _, f := range r.s.friends {
		if f.Status != models.FriendshipAccepted {
			continue
		}
		if f.RequesterID == userID || f.AddresseeID == userID {
			ids = append(ids, f.Other(userID))
		}
	}
	sort.Strings(ids)
	return ids, nil
}
