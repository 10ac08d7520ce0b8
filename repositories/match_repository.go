package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/padel-system/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchCreatorInvalid = errors.New("match creator conflict or invalid")
	ErrMatchCorrupted      = errors.New("match record is corrupted")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id string) (*models.Match, error)
	List(ctx context.Context) ([]*models.Match, error)
	ListByParticipant(ctx context.Context, userID string) ([]*models.Match, error)
	ListByLocationWindow(ctx context.Context, exec SQLExecutor, locationKey string, from, to time.Time) ([]*models.Match, error)
	// LockLocation сериализует создание матчей на одной площадке до конца транзакции exec.
	LockLocation(ctx context.Context, exec SQLExecutor, locationKey string) error

	// Условные обновления: false без ошибки означает, что документ
	// существует, но условие уже не выполняется (или документа нет).
	ClaimSlot(ctx context.Context, id string, slot int, userID string) (bool, error)
	ReleaseSlot(ctx context.Context, id string, slot int, userID string) (bool, error)
	// UpdateState также проверяет состав: см. models.Match.RosterAllows.
	UpdateState(ctx context.Context, id string, from, to models.MatchState) (bool, error)
	// Complete требует состояния in_progress и полного состава.
	Complete(ctx context.Context, exec SQLExecutor, id string, sets []models.SetResult, winningSide int) (bool, error)
	DeleteUnfilled(ctx context.Context, id string) (bool, error)

	Delete(ctx context.Context, exec SQLExecutor, id string) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, creator_id, location, scheduled_time, positions, state, sets, winning_side, created_at`

// Состояния, в которых состав матча заблокирован.
const lockedStates = `('in_progress', 'completed')`

const (
	rosterFull    = ` AND NOT ('' = ANY(positions))`
	rosterHasSlot = ` AND '' = ANY(positions)`
)

// rosterGuard - условие на состав для перехода в состояние to.
// Должно совпадать с models.Match.RosterAllows.
func rosterGuard(to models.MatchState) string {
	switch to {
	case models.StateReady, models.StateInProgress:
		return rosterFull
	case models.StatePending:
		return rosterHasSlot
	}
	return ""
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	setsJSON, err := marshalSets(match.Sets)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO matches
			(id, creator_id, location, location_key, scheduled_time, positions, state, sets, winning_side)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err = executor.QueryRowContext(ctx, query,
		match.ID,
		match.CreatorID,
		match.Location,
		NormalizeLocation(match.Location),
		match.ScheduledTime,
		pq.Array(match.Positions[:]),
		match.State,
		setsJSON,
		match.WinningSide,
	).Scan(&match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %s: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) List(ctx context.Context) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches ORDER BY scheduled_time ASC, id ASC`
	return r.queryMatches(ctx, nil, query)
}

func (r *postgresMatchRepository) ListByParticipant(ctx context.Context, userID string) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE $1 = ANY(positions)
		ORDER BY scheduled_time ASC, id ASC`
	return r.queryMatches(ctx, nil, query, userID)
}

func (r *postgresMatchRepository) ListByLocationWindow(ctx context.Context, exec SQLExecutor, locationKey string, from, to time.Time) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE location_key = $1 AND scheduled_time > $2 AND scheduled_time < $3
		ORDER BY scheduled_time ASC`
	return r.queryMatches(ctx, exec, query, locationKey, from, to)
}

// LockLocation берёт транзакционную advisory-блокировку по ключу площадки.
// Вне транзакции блокировка снимается сразу, поэтому exec обязателен.
func (r *postgresMatchRepository) LockLocation(ctx context.Context, exec SQLExecutor, locationKey string) error {
	if exec == nil {
		return fmt.Errorf("LockLocation: transaction required")
	}
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, locationKey); err != nil {
		return fmt.Errorf("LockLocation: failed to lock location %q: %w", locationKey, err)
	}
	return nil
}

// ClaimSlot записывает userID в пустую позицию одним условным UPDATE.
// Из двух конкурирующих запросов на одну позицию проходит только один:
// второй после ожидания блокировки строки перепроверяет WHERE и не находит её.
func (r *postgresMatchRepository) ClaimSlot(ctx context.Context, id string, slot int, userID string) (bool, error) {
	query := `
		UPDATE matches
		SET positions[$2::int] = $3, updated_at = now()
		WHERE id = $1
		  AND positions[$2::int] = ''
		  AND NOT ($3 = ANY(positions))
		  AND state NOT IN ` + lockedStates

	// В Postgres массивы нумеруются с единицы.
	result, err := r.db.ExecContext(ctx, query, id, slot+1, userID)
	if err != nil {
		return false, fmt.Errorf("ClaimSlot: failed to execute query for match %s: %w", id, err)
	}
	return affectedOne(result)
}

func (r *postgresMatchRepository) ReleaseSlot(ctx context.Context, id string, slot int, userID string) (bool, error) {
	query := `
		UPDATE matches
		SET positions[$2::int] = '', updated_at = now()
		WHERE id = $1
		  AND positions[$2::int] = $3
		  AND creator_id <> $3
		  AND state NOT IN ` + lockedStates

	result, err := r.db.ExecContext(ctx, query, id, slot+1, userID)
	if err != nil {
		return false, fmt.Errorf("ReleaseSlot: failed to execute query for match %s: %w", id, err)
	}
	return affectedOne(result)
}

func (r *postgresMatchRepository) UpdateState(ctx context.Context, id string, from, to models.MatchState) (bool, error) {
	query := `UPDATE matches SET state = $3, updated_at = now() WHERE id = $1 AND state = $2` + rosterGuard(to)
	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("UpdateState: failed to execute query for match %s: %w", id, err)
	}
	return affectedOne(result)
}

func (r *postgresMatchRepository) Complete(ctx context.Context, exec SQLExecutor, id string, sets []models.SetResult, winningSide int) (bool, error) {
	executor := r.getExecutor(exec)
	setsJSON, err := marshalSets(sets)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE matches
		SET state = 'completed', sets = $2, winning_side = $3, updated_at = now()
		WHERE id = $1 AND state = 'in_progress'` + rosterFull

	result, err := executor.ExecContext(ctx, query, id, setsJSON, winningSide)
	if err != nil {
		return false, fmt.Errorf("Complete: failed to execute query for match %s: %w", id, err)
	}
	return affectedOne(result)
}

// DeleteUnfilled удаляет матч, только если в нём ещё есть свободная позиция
// и он не начался. Используется при отмене по времени.
func (r *postgresMatchRepository) DeleteUnfilled(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM matches WHERE id = $1 AND state NOT IN ` + lockedStates + rosterHasSlot
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("DeleteUnfilled: failed to execute query for match %s: %w", id, err)
	}
	return affectedOne(result)
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: failed to execute query for match %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_creator_id_fkey":
			return ErrMatchCreatorInvalid
		}
	}
	return err
}

func scanMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var (
		m         models.Match
		positions pq.StringArray
		setsJSON  []byte
	)
	err := rowScanner.Scan(
		&m.ID,
		&m.CreatorID,
		&m.Location,
		&m.ScheduledTime,
		&positions,
		&m.State,
		&setsJSON,
		&m.WinningSide,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := copyPositions(&m.Positions, positions); err != nil {
		return nil, fmt.Errorf("match %s: %w", m.ID, err)
	}
	if m.Sets, err = unmarshalSets(setsJSON); err != nil {
		return nil, fmt.Errorf("match %s: %w", m.ID, err)
	}
	return &m, nil
}

func copyPositions(dst *[models.SlotCount]string, src []string) error {
	if len(src) != models.SlotCount {
		return fmt.Errorf("%w: %d positions", ErrMatchCorrupted, len(src))
	}
	copy(dst[:], src)
	return nil
}

func marshalSets(sets []models.SetResult) ([]byte, error) {
	if sets == nil {
		sets = []models.SetResult{}
	}
	b, err := json.Marshal(sets)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sets: %w", err)
	}
	return b, nil
}

func unmarshalSets(b []byte) ([]models.SetResult, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var sets []models.SetResult
	if err := json.Unmarshal(b, &sets); err != nil {
		return nil, fmt.Errorf("%w: sets: %v", ErrMatchCorrupted, err)
	}
	if len(sets) == 0 {
		return nil, nil
	}
	return sets, nil
}
