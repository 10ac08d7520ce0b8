package models

import "time"

// FinalizedMatch - неизменяемая архивная копия завершённого матча.
// ID не совпадает с ID живого матча; исходный хранится в SourceMatchID.
type FinalizedMatch struct {
	ID            string            `json:"id" db:"id"`
	SourceMatchID string            `json:"source_match_id" db:"source_match_id"`
	CreatorID     string            `json:"creator_id" db:"creator_id"`
	Location      string            `json:"location" db:"location"`
	ScheduledTime time.Time         `json:"scheduled_time" db:"scheduled_time"`
	Positions     [SlotCount]string `json:"positions" db:"positions"`
	Sets          []SetResult       `json:"sets" db:"sets"`
	WinningSide   int               `json:"winning_side" db:"winning_side"`
	FinalizedAt   time.Time         `json:"finalized_at" db:"finalized_at"`
}

// Side1 and Side2 return the player ids of each pairing (slots 0,1 and 2,3).
func (f *FinalizedMatch) Side1() []string { return []string{f.Positions[0], f.Positions[1]} }

func (f *FinalizedMatch) Side2() []string { return []string{f.Positions[2], f.Positions[3]} }
