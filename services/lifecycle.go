package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
)

// DefaultLifecycleInterval - период пересчёта состояний.
const DefaultLifecycleInterval = 30 * time.Second

// DesiredState вычисляет, в каком состоянии матч должен быть в момент now.
func DesiredState(m *models.Match, now time.Time) models.MatchState {
	if m.State == models.StateCompleted {
		return models.StateCompleted
	}
	full := m.OccupiedCount() == models.SlotCount
	started := !m.ScheduledTime.After(now)
	switch {
	case started && !full:
		return models.StateCancelled
	case started:
		return models.StateInProgress
	case full:
		return models.StateReady
	default:
		return models.StatePending
	}
}

// LifecycleClock периодически приводит состояния матчей из локального
// представления к DesiredState. Пишет только когда состояние меняется.
type LifecycleClock struct {
	matchRepo repositories.MatchRepository
	view      *MatchView
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewLifecycleClock(matchRepo repositories.MatchRepository, view *MatchView, interval time.Duration, now func() time.Time, logger *slog.Logger) *LifecycleClock {
	if interval <= 0 {
		interval = DefaultLifecycleInterval
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleClock{
		matchRepo: matchRepo,
		view:      view,
		interval:  interval,
		now:       now,
		logger:    logger,
	}
}

// TickResult - сколько матчей изменено за один проход.
type TickResult struct {
	Cancelled   int
	Transitions int
	Failed      int
}

// Tick performs one pass over every match currently held in the view.
func (c *LifecycleClock) Tick(ctx context.Context) TickResult {
	var res TickResult
	now := c.now()
	for _, m := range c.view.Snapshot() {
		if ctx.Err() != nil {
			return res
		}
		desired := DesiredState(m, now)
		if desired == m.State {
			continue
		}

		if desired == models.StateCancelled {
			deleted, err := c.matchRepo.DeleteUnfilled(ctx, m.ID)
			if err != nil {
				res.Failed++
				c.logger.ErrorContext(ctx, "Failed to cancel match", slog.String("match_id", m.ID), slog.Any("error", err))
				continue
			}
			if deleted {
				res.Cancelled++
				c.view.Drop(m.ID)
				c.logger.InfoContext(ctx, "Match cancelled", slog.String("match_id", m.ID), slog.Int("occupied", m.OccupiedCount()))
				continue
			}
			c.resync(ctx, m.ID)
			continue
		}

		updated, err := c.matchRepo.UpdateState(ctx, m.ID, m.State, desired)
		if err != nil {
			res.Failed++
			c.logger.ErrorContext(ctx, "Failed to update match state",
				slog.String("match_id", m.ID),
				slog.String("from", string(m.State)),
				slog.String("to", string(desired)),
				slog.Any("error", err))
			continue
		}
		if updated {
			res.Transitions++
			m.State = desired
			c.view.Upsert(m)
			c.logger.InfoContext(ctx, "Match state changed",
				slog.String("match_id", m.ID),
				slog.String("state", string(desired)))
			continue
		}
		c.resync(ctx, m.ID)
	}
	return res
}

// resync обновляет запись представления после проигранного условного обновления.
func (c *LifecycleClock) resync(ctx context.Context, id string) {
	fresh, err := c.matchRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrMatchNotFound) {
		c.view.Drop(id)
		return
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to reload match", slog.String("match_id", id), slog.Any("error", err))
		return
	}
	c.view.Upsert(fresh)
}

// Run тикает сразу и затем каждые interval, пока ctx не отменён.
func (c *LifecycleClock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Lifecycle clock started", slog.Duration("interval", c.interval))
	c.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Lifecycle clock stopped")
			return
		case <-ticker.C:
			c.runTick(ctx)
		}
	}
}

func (c *LifecycleClock) runTick(ctx context.Context) {
	res := c.Tick(ctx)
	if res.Cancelled > 0 || res.Transitions > 0 || res.Failed > 0 {
		c.logger.Debug("Lifecycle tick finished",
			slog.Int("cancelled", res.Cancelled),
			slog.Int("transitions", res.Transitions),
			slog.Int("failed", res.Failed))
	}
}
