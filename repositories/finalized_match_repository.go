package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrFinalizedMatchNotFound = errors.New("finalized match not found")

// FinalizedMatchRepository - архив завершённых матчей. Записи только создаются.
type FinalizedMatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, fm *models.FinalizedMatch) error
	GetByID(ctx context.Context, id string) (*models.FinalizedMatch, error)
	ListByParticipant(ctx context.Context, userID string) ([]*models.FinalizedMatch, error)
}

type postgresFinalizedMatchRepository struct {
	db *sql.DB
}

func NewPostgresFinalizedMatchRepository(db *sql.DB) FinalizedMatchRepository {
	return &postgresFinalizedMatchRepository{db: db}
}

const finalizedColumns = `id, source_match_id, creator_id, location, scheduled_time, positions, sets, winning_side, finalized_at`

func (r *postgresFinalizedMatchRepository) Create(ctx context.Context, exec SQLExecutor, fm *models.FinalizedMatch) error {
	executor := exec
	if executor == nil {
		executor = r.db
	}
	if fm.ID == "" {
		fm.ID = uuid.NewString()
	}
	setsJSON, err := marshalSets(fm.Sets)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO finalized_matches
			(id, source_match_id, creator_id, location, scheduled_time, positions, sets, winning_side)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING finalized_at`

	err = executor.QueryRowContext(ctx, query,
		fm.ID,
		fm.SourceMatchID,
		fm.CreatorID,
		fm.Location,
		fm.ScheduledTime,
		pq.Array(fm.Positions[:]),
		setsJSON,
		fm.WinningSide,
	).Scan(&fm.FinalizedAt)
	if err != nil {
		return fmt.Errorf("failed to insert finalized match for %s: %w", fm.SourceMatchID, err)
	}
	return nil
}

func (r *postgresFinalizedMatchRepository) GetByID(ctx context.Context, id string) (*models.FinalizedMatch, error) {
	query := `SELECT ` + finalizedColumns + ` FROM finalized_matches WHERE id = $1`
	fm, err := scanFinalizedMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFinalizedMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan finalized match by id %s: %w", id, err)
	}
	return fm, nil
}

// ListByParticipant возвращает историю игрока, от старых матчей к новым.
func (r *postgresFinalizedMatchRepository) ListByParticipant(ctx context.Context, userID string) ([]*models.FinalizedMatch, error) {
	query := `
		SELECT ` + finalizedColumns + `
		FROM finalized_matches
		WHERE $1 = ANY(positions)
		ORDER BY scheduled_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query finalized matches for user %s: %w", userID, err)
	}
	defer rows.Close()

	history := make([]*models.FinalizedMatch, 0)
	for rows.Next() {
		fm, scanErr := scanFinalizedMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan finalized match row: %w", scanErr)
		}
		history = append(history, fm)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during finalized match rows iteration: %w", err)
	}
	return history, nil
}

func scanFinalizedMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.FinalizedMatch, error) {
	var (
		fm        models.FinalizedMatch
		positions pq.StringArray
		setsJSON  []byte
	)
	err := rowScanner.Scan(
		&fm.ID,
		&fm.SourceMatchID,
		&fm.CreatorID,
		&fm.Location,
		&fm.ScheduledTime,
		&positions,
		&setsJSON,
		&fm.WinningSide,
		&fm.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := copyPositions(&fm.Positions, positions); err != nil {
		return nil, fmt.Errorf("finalized match %s: %w", fm.ID, err)
	}
	if fm.Sets, err = unmarshalSets(setsJSON); err != nil {
		return nil, fmt.Errorf("finalized match %s: %w", fm.ID, err)
	}
	return &fm, nil
}
