package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayush/fitness-ai/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// PostgresStore handles users and plans in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the users and plans tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username          VARCHAR(50)  UNIQUE NOT NULL,
			email             VARCHAR(255) UNIQUE NOT NULL,
			password          VARCHAR(255) NOT NULL,
			profile_image_url TEXT         NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ  DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS plans (
			id         UUID PRIMARY KEY,
			content    TEXT        NOT NULL,
			author_id  UUID        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_plans_created_at ON plans(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, email, hashedPassword string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password)
		 VALUES ($1, $2, $3)
		 RETURNING id, username, email, profile_image_url, created_at`,
		username, email, hashedPassword,
	).Scan(&u.ID, &u.Username, &u.Email, &u.ProfileImageURL, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password, profile_image_url, created_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.ProfileImageURL, &u.CreatedAt)
	if err != nil {
		return nil, noRows(err, "get user by email")
	}
	return &u, nil
}

// GetUserByID returns ErrNotFound for ids that are not UUIDs.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var u models.User
	err = s.pool.QueryRow(ctx,
		`SELECT id, username, email, profile_image_url, created_at
		 FROM users WHERE id = $1::uuid`, uid.String(),
	).Scan(&u.ID, &u.Username, &u.Email, &u.ProfileImageURL, &u.CreatedAt)
	if err != nil {
		return nil, noRows(err, "get user by id")
	}
	return &u, nil
}

// SetProfileImage points the user's profile image at url.
func (s *PostgresStore) SetProfileImage(ctx context.Context, id, url string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET profile_image_url = $2 WHERE id = $1::uuid`, uid.String(), url)
	if err != nil {
		return fmt.Errorf("set profile image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUserList returns at most limit users whose ids are in ids. Unknown ids,
// including ones that are not UUIDs, are skipped; the caller decides whether
// a miss matters.
func (s *PostgresStore) GetUserList(ctx context.Context, ids []string, limit int) ([]models.User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uid, err := uuid.Parse(id); err == nil {
			valid = append(valid, uid.String())
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, email, profile_image_url, created_at
		 FROM users
		 WHERE id = ANY($1::uuid[])
		 LIMIT $2`, valid, limit)
	if err != nil {
		return nil, fmt.Errorf("get user list: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.ProfileImageURL, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// ListRecentPlans returns up to limit plans, newest first.
func (s *PostgresStore) ListRecentPlans(ctx context.Context, limit int) ([]models.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, author_id, created_at
		 FROM plans
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Content, &p.AuthorID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

// CreatePlan inserts plan and fills in the server-assigned creation time.
func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.Plan) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO plans (id, content, author_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		plan.ID, plan.Content, plan.AuthorID,
	).Scan(&plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

func noRows(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
