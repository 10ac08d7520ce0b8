package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/padel-system/feed"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/scoring"
)

// DefaultOverlapWindow - минимальный интервал между матчами на одной площадке.
const DefaultOverlapWindow = 90 * time.Minute

// ArchiveMirror получает копию архивной записи после успешной финализации.
type ArchiveMirror interface {
	Put(ctx context.Context, fm *models.FinalizedMatch) error
}

type MatchService interface {
	Create(ctx context.Context, creatorID, location string, scheduledTime time.Time) (*models.Match, error)
	Join(ctx context.Context, matchID, userID string) (string, error)
	ClaimSlot(ctx context.Context, matchID string, slot int, userID string) (string, error)
	Leave(ctx context.Context, matchID, userID string) (string, error)
	Remove(ctx context.Context, matchID, requesterID string) error
	Finalize(ctx context.Context, matchID, requesterID string, rawSets []scoring.RawSet) (*models.FinalizedMatch, error)

	Get(ctx context.Context, matchID string) (*models.Match, error)
	List(ctx context.Context) []*models.Match
	ListForUser(ctx context.Context, userID string) ([]*models.Match, error)

	// Sync перечитывает все живые матчи из хранилища в представление.
	Sync(ctx context.Context) error
	// Follow применяет снимки ленты к представлению, пока канал открыт и ctx жив.
	Follow(ctx context.Context, snapshots <-chan feed.Snapshot)
}

type MatchServiceOptions struct {
	OverlapWindow time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
	Mirror        ArchiveMirror
}

type matchService struct {
	matchRepo     repositories.MatchRepository
	finalizedRepo repositories.FinalizedMatchRepository
	userRepo      repositories.UserRepository
	tx            repositories.Transactor
	slots         *SlotAssigner
	stats         *StatisticsPoster
	view          *MatchView

	overlapWindow time.Duration
	now           func() time.Time
	logger        *slog.Logger
	mirror        ArchiveMirror
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	finalizedRepo repositories.FinalizedMatchRepository,
	userRepo repositories.UserRepository,
	tx repositories.Transactor,
	view *MatchView,
	opts MatchServiceOptions,
) MatchService {
	if opts.OverlapWindow <= 0 {
		opts.OverlapWindow = DefaultOverlapWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &matchService{
		matchRepo:     matchRepo,
		finalizedRepo: finalizedRepo,
		userRepo:      userRepo,
		tx:            tx,
		slots:         NewSlotAssigner(matchRepo),
		stats:         NewStatisticsPoster(userRepo),
		view:          view,
		overlapWindow: opts.OverlapWindow,
		now:           opts.Now,
		logger:        opts.Logger,
		mirror:        opts.Mirror,
	}
}

func (s *matchService) Create(ctx context.Context, creatorID, location string, scheduledTime time.Time) (*models.Match, error) {
	location = strings.TrimSpace(location)
	if location == "" || scheduledTime.IsZero() {
		return nil, ErrLocationRequired
	}
	if !scheduledTime.After(s.now()) {
		return nil, ErrPastSchedule
	}
	if err := s.ensureUser(ctx, creatorID); err != nil {
		return nil, err
	}

	match := &models.Match{
		CreatorID:     creatorID,
		Location:      location,
		ScheduledTime: scheduledTime.UTC(),
		Positions:     [models.SlotCount]string{creatorID, "", "", ""},
		State:         models.StatePending,
	}

	// Проверка пересечения и вставка под одной блокировкой площадки.
	key := repositories.NormalizeLocation(location)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.LockLocation(ctx, exec, key); err != nil {
			return err
		}
		nearby, err := s.matchRepo.ListByLocationWindow(ctx, exec, key,
			scheduledTime.Add(-s.overlapWindow), scheduledTime.Add(s.overlapWindow))
		if err != nil {
			return fmt.Errorf("check location overlap: %w", err)
		}
		if len(nearby) > 0 {
			return ErrLocationConflict
		}
		return s.matchRepo.Create(ctx, exec, match)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrLocationConflict):
			return nil, ErrLocationConflict
		case errors.Is(err, repositories.ErrMatchCreatorInvalid):
			return nil, ErrUserNotFound
		}
		return nil, storeError("create match", err)
	}

	s.view.Upsert(match)
	s.logger.InfoContext(ctx, "Match created",
		slog.String("match_id", match.ID),
		slog.String("creator_id", creatorID),
		slog.Time("scheduled_time", match.ScheduledTime))
	return match, nil
}

// Join занимает первую свободную позицию.
func (s *matchService) Join(ctx context.Context, matchID, userID string) (string, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return UserMessage(err), err
	}
	match, err := s.load(ctx, matchID)
	if err != nil {
		return UserMessage(err), err
	}

	wasMember := match.SlotOf(userID) >= 0
	slot := match.FirstEmptySlot()
	if !wasMember && !match.IsFinished() && slot < 0 {
		return UserMessage(ErrMatchFull), ErrMatchFull
	}
	if slot < 0 {
		// Номер позиции не важен: SlotAssigner отклонит или признает no-op раньше.
		slot = 0
	}

	if err := s.slots.ClaimSlot(ctx, match, slot, userID); err != nil {
		s.syncOne(ctx, match)
		return UserMessage(err), err
	}
	s.view.Upsert(match)
	if wasMember || match.Positions[slot] != userID {
		return MsgAlreadyIn, nil
	}
	s.logger.InfoContext(ctx, "Player joined match",
		slog.String("match_id", matchID),
		slog.String("user_id", userID),
		slog.Int("slot", slot))
	return MsgJoined, nil
}

// ClaimSlot занимает конкретную позицию.
func (s *matchService) ClaimSlot(ctx context.Context, matchID string, slot int, userID string) (string, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return UserMessage(err), err
	}
	match, err := s.load(ctx, matchID)
	if err != nil {
		return UserMessage(err), err
	}
	wasMember := match.SlotOf(userID) >= 0

	if err := s.slots.ClaimSlot(ctx, match, slot, userID); err != nil {
		s.syncOne(ctx, match)
		return UserMessage(err), err
	}
	s.view.Upsert(match)
	if wasMember {
		return MsgAlreadyIn, nil
	}
	return MsgJoined, nil
}

func (s *matchService) Leave(ctx context.Context, matchID, userID string) (string, error) {
	match, err := s.load(ctx, matchID)
	if err != nil {
		return UserMessage(err), err
	}
	if err := s.slots.VacateSlot(ctx, match, userID); err != nil {
		s.syncOne(ctx, match)
		return UserMessage(err), err
	}
	s.view.Upsert(match)
	s.logger.InfoContext(ctx, "Player left match", slog.String("match_id", matchID), slog.String("user_id", userID))
	return MsgLeft, nil
}

func (s *matchService) Remove(ctx context.Context, matchID, requesterID string) error {
	match, err := s.load(ctx, matchID)
	if err != nil {
		return err
	}
	if match.CreatorID != requesterID {
		return ErrNotCreator
	}
	if match.State == models.StateCompleted {
		return ErrAlreadyFinished
	}

	if err := s.matchRepo.Delete(ctx, nil, matchID); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			s.view.Drop(matchID)
			return ErrMatchNotFound
		}
		return storeError("delete match", err)
	}
	s.view.Drop(matchID)
	s.logger.InfoContext(ctx, "Match removed", slog.String("match_id", matchID), slog.String("requester_id", requesterID))
	return nil
}

func (s *matchService) Finalize(ctx context.Context, matchID, requesterID string, rawSets []scoring.RawSet) (*models.FinalizedMatch, error) {
	match, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.CreatorID != requesterID {
		return nil, ErrNotCreator
	}
	if match.State != models.StateInProgress {
		return nil, ErrNotInProgress
	}
	if !match.IsFull() {
		return nil, ErrRosterIncomplete
	}

	sets, err := scoring.ParseRawSets(rawSets)
	if err != nil {
		return nil, err
	}
	outcome, err := scoring.ValidateMatchSets(sets)
	if err != nil {
		return nil, err
	}

	archived := &models.FinalizedMatch{
		SourceMatchID: match.ID,
		CreatorID:     match.CreatorID,
		Location:      match.Location,
		ScheduledTime: match.ScheduledTime,
		Positions:     match.Positions,
		Sets:          outcome.Sets,
		WinningSide:   outcome.WinningSide,
		FinalizedAt:   s.now().UTC(),
	}

	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		completed, err := s.matchRepo.Complete(ctx, exec, match.ID, outcome.Sets, outcome.WinningSide)
		if err != nil {
			return fmt.Errorf("complete match: %w", err)
		}
		if !completed {
			// Матч успели завершить или удалить: прерываем транзакцию.
			return ErrNotInProgress
		}
		if err := s.finalizedRepo.Create(ctx, exec, archived); err != nil {
			return fmt.Errorf("archive match: %w", err)
		}
		if err := s.stats.Apply(ctx, exec, archived); err != nil {
			return err
		}
		if err := s.matchRepo.Delete(ctx, exec, match.ID); err != nil {
			return fmt.Errorf("delete live match: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotInProgress) {
			s.syncOne(ctx, match)
			return nil, ErrNotInProgress
		}
		s.logger.ErrorContext(ctx, "Failed to finalize match", slog.String("match_id", matchID), slog.Any("error", err))
		return nil, storeError("finalize match", err)
	}

	s.view.Drop(matchID)
	s.logger.InfoContext(ctx, "Match finalized",
		slog.String("match_id", matchID),
		slog.String("archive_id", archived.ID),
		slog.Int("winning_side", archived.WinningSide))

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, archived); err != nil {
			s.logger.WarnContext(ctx, "Failed to mirror finalized match",
				slog.String("archive_id", archived.ID),
				slog.Any("error", err))
		}
	}
	return archived, nil
}

func (s *matchService) Get(ctx context.Context, matchID string) (*models.Match, error) {
	if m, ok := s.view.Get(matchID); ok {
		return m, nil
	}
	return s.load(ctx, matchID)
}

func (s *matchService) List(ctx context.Context) []*models.Match {
	return s.view.Snapshot()
}

func (s *matchService) ListForUser(ctx context.Context, userID string) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, storeError("list matches for user", err)
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	return matches, nil
}

func (s *matchService) Sync(ctx context.Context) error {
	matches, err := s.matchRepo.List(ctx)
	if err != nil {
		return storeError("list matches", err)
	}
	s.view.ApplySnapshot(matches)
	return nil
}

func (s *matchService) Follow(ctx context.Context, snapshots <-chan feed.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			s.view.ApplySnapshot(snap.Matches)
			s.logger.Debug("Match view refreshed", slog.Int("matches", len(snap.Matches)))
		}
	}
}

// load читает матч из хранилища: изменяющие операции не доверяют представлению.
func (s *matchService) load(ctx context.Context, matchID string) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			s.view.Drop(matchID)
			return nil, ErrMatchNotFound
		}
		return nil, storeError("get match", err)
	}
	return match, nil
}

// syncOne кладёт в представление то, что SlotAssigner перечитал после гонки.
func (s *matchService) syncOne(ctx context.Context, match *models.Match) {
	fresh, err := s.matchRepo.GetByID(ctx, match.ID)
	if errors.Is(err, repositories.ErrMatchNotFound) {
		s.view.Drop(match.ID)
		return
	}
	if err == nil {
		s.view.Upsert(fresh)
	}
}

func (s *matchService) ensureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserNotFound
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return storeError("get user", err)
	}
	return nil
}
