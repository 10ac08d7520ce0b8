package services

import (
	"context"
	"errors"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
)

// SlotAssigner занимает и освобождает позиции матча. Проверки делаются по
// переданному снимку, а запись - условным обновлением в хранилище, поэтому
// снимок может быть устаревшим: гонку решает хранилище.
type SlotAssigner struct {
	matchRepo repositories.MatchRepository
}

func NewSlotAssigner(matchRepo repositories.MatchRepository) *SlotAssigner {
	return &SlotAssigner{matchRepo: matchRepo}
}

// ClaimSlot записывает userID в позицию slot. Повторный вызов участником
// матча - успешный no-op. На успехе match.Positions обновляется.
func (a *SlotAssigner) ClaimSlot(ctx context.Context, match *models.Match, slot int, userID string) error {
	if match.IsFinished() {
		return ErrAlreadyFinished
	}
	if match.SlotOf(userID) >= 0 {
		return nil
	}
	if slot < 0 || slot >= models.SlotCount {
		return ErrIndexOutOfRange
	}
	if match.Positions[slot] != "" {
		return ErrSlotTaken
	}

	claimed, err := a.matchRepo.ClaimSlot(ctx, match.ID, slot, userID)
	if err != nil {
		return storeError("claim slot", err)
	}
	if claimed {
		match.Positions[slot] = userID
		return nil
	}

	// Условие не выполнилось: кто-то успел раньше. Выясняем, что именно.
	fresh, err := a.matchRepo.GetByID(ctx, match.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return storeError("reload match", err)
	}
	*match = *fresh
	switch {
	case fresh.SlotOf(userID) >= 0:
		return nil
	case fresh.IsFinished():
		return ErrAlreadyFinished
	default:
		return ErrSlotTaken
	}
}

// VacateSlot освобождает позицию, которую занимает userID.
func (a *SlotAssigner) VacateSlot(ctx context.Context, match *models.Match, userID string) error {
	if userID == match.CreatorID {
		return ErrCreatorCannotLeave
	}
	slot := match.SlotOf(userID)
	if slot < 0 {
		return ErrNotAMember
	}
	if match.IsFinished() {
		return ErrAlreadyFinished
	}

	released, err := a.matchRepo.ReleaseSlot(ctx, match.ID, slot, userID)
	if err != nil {
		return storeError("release slot", err)
	}
	if released {
		match.Positions[slot] = ""
		return nil
	}

	fresh, err := a.matchRepo.GetByID(ctx, match.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return storeError("reload match", err)
	}
	*match = *fresh
	switch {
	case fresh.IsFinished():
		return ErrAlreadyFinished
	case fresh.SlotOf(userID) < 0:
		return ErrNotAMember
	default:
		// Игрок мог перейти на другую позицию между чтением и записью.
		return a.VacateSlot(ctx, match, userID)
	}
}
