// Package scoring validates padel set scores and best-of-three results.
package scoring

import (
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/models"
)

// Матч играется до двух выигранных сетов из трёх.
const (
	MaxSets   = 3
	SetsToWin = 2
)

const (
	Side1 = 1
	Side2 = 2
)

var (
	ErrNoSets              = errors.New("at least one set is required")
	ErrTooManySets         = errors.New("a match has at most 3 sets")
	ErrInvalidSetScore     = errors.New("invalid set score")
	ErrMatchAlreadyDecided = errors.New("match already decided, extra set present")
	ErrNoWinner            = errors.New("no side has won 2 sets")
	ErrTooManyWins         = errors.New("more than 2 wins recorded")
	ErrIncompleteSet       = errors.New("both scores of a set are required")
	ErrNonNumericSet       = errors.New("set scores must be numbers")
)

// SetError привязывает ошибку валидации к номеру сета (с единицы).
type SetError struct {
	Index int
	Err   error
}

func (e *SetError) Error() string {
	return fmt.Sprintf("set %d: %v", e.Index, e.Err)
}

func (e *SetError) Unwrap() error { return e.Err }

// Outcome - результат успешной валидации последовательности сетов.
type Outcome struct {
	Sets        []models.SetResult
	WinsSide1   int
	WinsSide2   int
	WinningSide int
}

// IsValidSet reports whether a-b is a finished set score: 6-0..6-4, 7-5 or 7-6.
func IsValidSet(a, b int) bool {
	if a == b {
		return false
	}
	hi, lo := max(a, b), min(a, b)
	switch {
	case hi == 6 && lo >= 0 && lo <= 4:
		return true
	case hi == 7 && (lo == 5 || lo == 6):
		return true
	default:
		return false
	}
}

// ValidateMatchSets scans sets strictly in order and accepts only a decided
// best-of-three result with no set played after the deciding one.
func ValidateMatchSets(sets []models.SetResult) (*Outcome, error) {
	if len(sets) == 0 {
		return nil, ErrNoSets
	}
	if len(sets) > MaxSets {
		return nil, ErrTooManySets
	}

	var wins1, wins2 int
	for i, set := range sets {
		if !IsValidSet(set.GamesSide1, set.GamesSide2) {
			return nil, &SetError{Index: i + 1, Err: ErrInvalidSetScore}
		}
		if set.GamesSide1 > set.GamesSide2 {
			wins1++
		} else {
			wins2++
		}
		if (wins1 == SetsToWin || wins2 == SetsToWin) && i < len(sets)-1 {
			return nil, &SetError{Index: i + 2, Err: ErrMatchAlreadyDecided}
		}
	}

	if wins1 > SetsToWin || wins2 > SetsToWin {
		return nil, ErrTooManyWins
	}
	if wins1 != SetsToWin && wins2 != SetsToWin {
		return nil, ErrNoWinner
	}

	winner := Side1
	if wins2 == SetsToWin {
		winner = Side2
	}
	return &Outcome{
		Sets:        append([]models.SetResult(nil), sets...),
		WinsSide1:   wins1,
		WinsSide2:   wins2,
		WinningSide: winner,
	}, nil
}

// Tally counts sets won by each side without validating them.
func Tally(sets []models.SetResult) (wins1, wins2 int) {
	for _, set := range sets {
		switch {
		case set.GamesSide1 > set.GamesSide2:
			wins1++
		case set.GamesSide2 > set.GamesSide1:
			wins2++
		}
	}
	return wins1, wins2
}
