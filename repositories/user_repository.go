package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/padel-system/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserEmailConflict = errors.New("user email conflict")
)

// ListUsersFilter - параметры списка пользователей.
// IDs != nil ограничивает выборку этими id; пустой срез даёт пустой результат.
type ListUsersFilter struct {
	Search string
	IDs    []string
	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// List возвращает пользователей по имени, затем по id.
	// Search ищет подстроку в имени или email без учёта регистра.
	List(ctx context.Context, filter ListUsersFilter) ([]*models.User, error)
	// UpdateProfile записывает name, level и avatar_url.
	UpdateProfile(ctx context.Context, user *models.User) error
	// IncrementStats применяет все приращения одной операцией: либо все, либо ни одного.
	IncrementStats(ctx context.Context, exec SQLExecutor, deltas []models.StatsDelta) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Level == 0 {
		user.Level = models.MinLevel
	}

	query := `
		INSERT INTO users (id, name, email, password_hash, level, avatar_url, matches_played, matches_won, matches_lost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Level,
		user.AvatarURL,
		user.MatchesPlayed,
		user.MatchesWon,
		user.MatchesLost,
	).Scan(&user.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "users_email_key" {
					return ErrUserEmailConflict
				}
			}
		}
		return err
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return r.scanUser(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

func (r *postgresUserRepository) List(ctx context.Context, filter ListUsersFilter) ([]*models.User, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []*models.User{}, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if search := strings.TrimSpace(filter.Search); search != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", argID, argID)
		args = append(args, "%"+escapeLike(search)+"%")
		argID++
	}
	if filter.IDs != nil {
		query += fmt.Sprintf(" AND id = ANY($%d)", argID)
		args = append(args, pq.Array(filter.IDs))
		argID++
	}

	query += " ORDER BY name, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *postgresUserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			name = $1,
			level = $2,
			avatar_url = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, user.Name, user.Level, user.AvatarURL, user.ID)
	if err != nil {
		return fmt.Errorf("UpdateProfile: %w", err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) IncrementStats(ctx context.Context, exec SQLExecutor, deltas []models.StatsDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	executor := exec
	if executor == nil {
		executor = r.db
	}

	ids := make([]string, len(deltas))
	won := make([]int64, len(deltas))
	lost := make([]int64, len(deltas))
	for i, d := range deltas {
		ids[i] = d.UserID
		if d.Won {
			won[i] = 1
		} else {
			lost[i] = 1
		}
	}

	// Один UPDATE на всю пачку: частичное начисление невозможно.
	query := `
		UPDATE users AS u SET
			matches_played = u.matches_played + 1,
			matches_won    = u.matches_won + d.won,
			matches_lost   = u.matches_lost + d.lost
		FROM unnest($1::text[], $2::int[], $3::int[]) AS d(id, won, lost)
		WHERE u.id = d.id`

	result, err := executor.ExecContext(ctx, query, pq.Array(ids), pq.Array(won), pq.Array(lost))
	if err != nil {
		return fmt.Errorf("IncrementStats: failed to execute batch for %d users: %w", len(deltas), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if int(rowsAffected) != len(deltas) {
		return fmt.Errorf("%w: updated %d of %d users", ErrUserNotFound, rowsAffected, len(deltas))
	}
	return nil
}

const userColumns = `id, name, email, password_hash, level, avatar_url, matches_played, matches_won, matches_lost, created_at`

func scanUserRow(rowScanner interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := rowScanner.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Level,
		&user.AvatarURL,
		&user.MatchesPlayed,
		&user.MatchesWon,
		&user.MatchesLost,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// scanUser - вспомогательный метод для сканирования одного пользователя
func (r *postgresUserRepository) scanUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUserRow(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
