package models

import "time"

// MatchState представляет состояние матча в жизненном цикле.
type MatchState string

const (
	StatePending    MatchState = "pending"
	StateReady      MatchState = "ready"
	StateInProgress MatchState = "in_progress"
	StateCompleted  MatchState = "completed"
	StateCancelled  MatchState = "cancelled"
)

// SlotCount - фиксированное число позиций в матче (2 на 2).
const SlotCount = 4

// SetResult - счёт одного сета по геймам.
type SetResult struct {
	GamesSide1 int `json:"games_side1"`
	GamesSide2 int `json:"games_side2"`
}

// Match - живой (изменяемый) матч.
type Match struct {
	ID            string            `json:"id" db:"id"`
	CreatorID     string            `json:"creator_id" db:"creator_id"`
	Location      string            `json:"location" db:"location"`
	ScheduledTime time.Time         `json:"scheduled_time" db:"scheduled_time"`
	Positions     [SlotCount]string `json:"positions" db:"positions"`
	State         MatchState        `json:"state" db:"state"`
	Sets          []SetResult       `json:"sets" db:"sets"`
	WinningSide   int               `json:"winning_side" db:"winning_side"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// OccupiedCount возвращает число занятых позиций.
func (m *Match) OccupiedCount() int {
	n := 0
	for _, p := range m.Positions {
		if p != "" {
			n++
		}
	}
	return n
}

// SlotOf returns the slot index held by userID, or -1.
func (m *Match) SlotOf(userID string) int {
	if userID == "" {
		return -1
	}
	for i, p := range m.Positions {
		if p == userID {
			return i
		}
	}
	return -1
}

// FirstEmptySlot returns the lowest empty slot index, or -1 when the roster is full.
func (m *Match) FirstEmptySlot() int {
	for i, p := range m.Positions {
		if p == "" {
			return i
		}
	}
	return -1
}

// IsFinished - в игре или завершён: состав больше менять нельзя.
func (m *Match) IsFinished() bool {
	return m.State == StateInProgress || m.State == StateCompleted
}

// IsFull - все четыре позиции заняты.
func (m *Match) IsFull() bool { return m.FirstEmptySlot() < 0 }

// RosterAllows reports whether the roster permits entering state:
// ready and in_progress need a full roster, pending needs a free slot.
func (m *Match) RosterAllows(state MatchState) bool {
	switch state {
	case StateReady, StateInProgress:
		return m.IsFull()
	case StatePending:
		return !m.IsFull()
	}
	return true
}

func (m *Match) Clone() *Match {
	c := *m
	if m.Sets != nil {
		c.Sets = append([]SetResult(nil), m.Sets...)
	}
	return &c
}
