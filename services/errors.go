package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/scoring"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrMatchNotFound = errors.New("match not found")
	ErrUserNotFound  = errors.New("user not found")

	// Создание матча
	ErrLocationRequired = errors.New("location is required")
	ErrPastSchedule     = errors.New("scheduled time is in the past")
	ErrLocationConflict = errors.New("another match is scheduled near that time at this location")

	// Позиции
	ErrAlreadyFinished    = errors.New("match is already in progress or finished")
	ErrIndexOutOfRange    = errors.New("slot index out of range")
	ErrSlotTaken          = errors.New("slot is already taken")
	ErrMatchFull          = errors.New("match has no free slots")
	ErrCreatorCannotLeave = errors.New("the creator cannot leave the match")
	ErrNotAMember         = errors.New("user is not in this match")

	// Права и жизненный цикл
	ErrNotCreator       = errors.New("only the match creator can perform this action")
	ErrNotInProgress    = errors.New("only matches in progress can be finalized")
	ErrRosterIncomplete = errors.New("match roster is not complete")

	// Аккаунты
	ErrValidationFailed   = errors.New("validation failed")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailConflict      = errors.New("email address is already in use")
	ErrNoProfileFields    = errors.New("no fields provided for update")

	// Друзья
	ErrCannotFriendSelf      = errors.New("cannot send a friend request to yourself")
	ErrFriendRequestPending  = errors.New("friend request already pending")
	ErrAlreadyFriends        = errors.New("users are already friends")
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrNotFriends            = errors.New("users are not friends")

	// Ошибка хранилища или транспорта; исходная ошибка оборачивается.
	ErrStoreFailure = errors.New("store operation failed")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

// IsValidationError reports whether err is a score-input or validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrLocationRequired) ||
		errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrNoProfileFields) ||
		errors.Is(err, ErrCannotFriendSelf) ||
		errors.Is(err, scoring.ErrNoSets) ||
		errors.Is(err, scoring.ErrTooManySets) ||
		errors.Is(err, scoring.ErrInvalidSetScore) ||
		errors.Is(err, scoring.ErrMatchAlreadyDecided) ||
		errors.Is(err, scoring.ErrNoWinner) ||
		errors.Is(err, scoring.ErrTooManyWins) ||
		errors.Is(err, scoring.ErrIncompleteSet) ||
		errors.Is(err, scoring.ErrNonNumericSet)
}
