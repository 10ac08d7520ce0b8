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

var (
	ErrFriendshipNotFound    = errors.New("friendship not found")
	ErrFriendshipExists      = errors.New("friendship for this pair already exists")
	ErrFriendshipUserInvalid = errors.New("friendship user conflict or invalid")
)

// FriendshipRepository хранит одну запись на пару пользователей.
type FriendshipRepository interface {
	// Create вставляет новую пару. Если пара уже есть в любом порядке - ErrFriendshipExists.
	Create(ctx context.Context, f *models.Friendship) error
	GetByID(ctx context.Context, id string) (*models.Friendship, error)
	// GetByPair ищет запись пары независимо от того, кто отправлял запрос.
	GetByPair(ctx context.Context, userA, userB string) (*models.Friendship, error)

	// Transition меняет статус from -> to, только если запись всё ещё в статусе from.
	Transition(ctx context.Context, id string, from, to models.FriendshipStatus) (bool, error)
	// Reopen возвращает отклонённую или удалённую пару в pending от нового отправителя.
	Reopen(ctx context.Context, id, requesterID, addresseeID string) (bool, error)

	// ListIncoming - запросы в статусе pending, адресованные userID, старые первыми.
	ListIncoming(ctx context.Context, userID string) ([]*models.Friendship, error)
	// ListFriendIDs - id всех, с кем у userID статус accepted.
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

type postgresFriendshipRepository struct {
	db *sql.DB
}

func NewPostgresFriendshipRepository(db *sql.DB) FriendshipRepository {
	return &postgresFriendshipRepository{db: db}
}

const friendshipColumns = `id, requester_id, addressee_id, status, created_at, updated_at`

func (r *postgresFriendshipRepository) Create(ctx context.Context, f *models.Friendship) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FriendshipPending
	}

	query := `
		INSERT INTO friendships (id, requester_id, addressee_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, f.ID, f.RequesterID, f.AddresseeID, f.Status).
		Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "friendships_pair_key" {
					return ErrFriendshipExists
				}
			case "23503": // foreign_key_violation
				return ErrFriendshipUserInvalid
			}
		}
		return fmt.Errorf("Create friendship: %w", err)
	}
	return nil
}

func (r *postgresFriendshipRepository) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	query := `SELECT ` + friendshipColumns + ` FROM friendships WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *postgresFriendshipRepository) GetByPair(ctx context.Context, userA, userB string) (*models.Friendship, error) {
	query := `
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE LEAST(requester_id, addressee_id) = LEAST($1::text, $2::text)
		  AND GREATEST(requester_id, addressee_id) = GREATEST($1::text, $2::text)`
	return r.scanOne(ctx, query, userA, userB)
}

func (r *postgresFriendshipRepository) Transition(ctx context.Context, id string, from, to models.FriendshipStatus) (bool, error) {
	query := `
		UPDATE friendships SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("Transition friendship %s: %w", id, err)
	}
	return affectedOne(result)
}

func (r *postgresFriendshipRepository) Reopen(ctx context.Context, id, requesterID, addresseeID string) (bool, error) {
	query := `
		UPDATE friendships SET
			requester_id = $2,
			addressee_id = $3,
			status = 'pending',
			updated_at = now()
		WHERE id = $1 AND status IN ('rejected', 'removed')`
	result, err := r.db.ExecContext(ctx, query, id, requesterID, addresseeID)
	if err != nil {
		return false, fmt.Errorf("Reopen friendship %s: %w", id, err)
	}
	return affectedOne(result)
}

func (r *postgresFriendshipRepository) ListIncoming(ctx context.Context, userID string) ([]*models.Friendship, error) {
	query := `
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE addressee_id = $1 AND status = 'pending'
		ORDER BY updated_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListIncoming: %w", err)
	}
	defer rows.Close()

	requests := make([]*models.Friendship, 0)
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *postgresFriendshipRepository) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT CASE WHEN requester_id = $1 THEN addressee_id ELSE requester_id END
		FROM friendships
		WHERE (requester_id = $1 OR addressee_id = $1) AND status = 'accepted'`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListFriendIDs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *postgresFriendshipRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*models.Friendship, error) {
	f, err := scanFriendship(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFriendshipNotFound
		}
		return nil, err
	}
	return f, nil
}

func scanFriendship(rowScanner interface{ Scan(...interface{}) error }) (*models.Friendship, error) {
	f := &models.Friendship{}
	err := rowScanner.Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}
