package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/scoring"
)

// StatisticsPoster начисляет игрокам сыгранные матчи, победы и поражения.
type StatisticsPoster struct {
	userRepo repositories.UserRepository
}

func NewStatisticsPoster(userRepo repositories.UserRepository) *StatisticsPoster {
	return &StatisticsPoster{userRepo: userRepo}
}

// ComputeDeltas returns exactly one delta per position.
// Side 1 is positions 0 and 1, side 2 is positions 2 and 3.
// A roster with an empty position yields ErrRosterIncomplete.
func ComputeDeltas(fm *models.FinalizedMatch) ([]models.StatsDelta, error) {
	wins1, wins2 := scoring.Tally(fm.Sets)
	winner := scoring.Side2
	if wins1 > wins2 {
		winner = scoring.Side1
	}

	deltas := make([]models.StatsDelta, 0, models.SlotCount)
	for i, uid := range fm.Positions {
		if uid == "" {
			return nil, fmt.Errorf("%w: position %d is empty", ErrRosterIncomplete, i)
		}
		side := scoring.Side1
		if i >= 2 {
			side = scoring.Side2
		}
		deltas = append(deltas, models.StatsDelta{UserID: uid, Won: side == winner})
	}
	return deltas, nil
}

// Apply записывает все приращения одной пачкой через exec.
// Вызывается внутри транзакции финализации.
func (p *StatisticsPoster) Apply(ctx context.Context, exec repositories.SQLExecutor, fm *models.FinalizedMatch) error {
	deltas, err := ComputeDeltas(fm)
	if err != nil {
		return err
	}
	if err := p.userRepo.IncrementStats(ctx, exec, deltas); err != nil {
		return fmt.Errorf("failed to post statistics for match %s: %w", fm.SourceMatchID, err)
	}
	return nil
}
