package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/scoring"
)

// Сообщения для пользователя.
const (
	MsgJoined    = "You joined the match"
	MsgAlreadyIn = "You are already in this match"
	MsgLeft      = "You left the match"
	MsgCreated   = "Match created"
	MsgRemoved   = "Match deleted"
	MsgFinalized = "Match finalized"
)

// UserMessage renders err as a human-readable message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var setErr *scoring.SetError
	if errors.As(err, &setErr) {
		switch {
		case errors.Is(setErr.Err, scoring.ErrIncompleteSet):
			return fmt.Sprintf("Fill in both scores in set %d", setErr.Index)
		case errors.Is(setErr.Err, scoring.ErrNonNumericSet):
			return fmt.Sprintf("Games must be numbers in set %d", setErr.Index)
		case errors.Is(setErr.Err, scoring.ErrInvalidSetScore):
			return fmt.Sprintf("Invalid score in set %d", setErr.Index)
		case errors.Is(setErr.Err, scoring.ErrMatchAlreadyDecided):
			return fmt.Sprintf("The match was already decided before set %d", setErr.Index)
		}
	}

	switch {
	case errors.Is(err, scoring.ErrNoSets):
		return "Enter at least one set"
	case errors.Is(err, scoring.ErrTooManySets),
		errors.Is(err, scoring.ErrNoWinner),
		errors.Is(err, scoring.ErrTooManyWins):
		return "The sets do not form a valid best-of-three result"
	case errors.Is(err, ErrAlreadyFinished):
		return "The match is already in progress or finished"
	case errors.Is(err, ErrSlotTaken):
		return "That position is already taken"
	case errors.Is(err, ErrMatchFull):
		return "The match is full"
	case errors.Is(err, ErrIndexOutOfRange):
		return "Position out of range"
	case errors.Is(err, ErrCreatorCannotLeave):
		return "The creator cannot leave the match"
	case errors.Is(err, ErrNotAMember):
		return "You are not in this match"
	case errors.Is(err, ErrNotCreator):
		return "Only the creator can do this"
	case errors.Is(err, ErrNotInProgress):
		return "You can only finalize matches in progress"
	case errors.Is(err, ErrRosterIncomplete):
		return "All four positions must be filled"
	case errors.Is(err, ErrPastSchedule):
		return "You cannot create a match in the past"
	case errors.Is(err, ErrLocationConflict):
		return "There is already a match near that time"
	case errors.Is(err, ErrLocationRequired):
		return "Location and time are required"
	case errors.Is(err, ErrMatchNotFound):
		return "Match not found"
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	case errors.Is(err, ErrCannotFriendSelf):
		return "You cannot add yourself as a friend"
	case errors.Is(err, ErrFriendRequestPending):
		return "There is already a pending request between you"
	case errors.Is(err, ErrAlreadyFriends):
		return "You are already friends"
	case errors.Is(err, ErrFriendRequestNotFound):
		return "Friend request not found"
	case errors.Is(err, ErrNotFriends):
		return "You are not friends"
	default:
		return err.Error()
	}
}
