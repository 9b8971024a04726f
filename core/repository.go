package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the postgres-backed credential store plus the writes
// needed to seed it at startup.
type UserRepository interface {
	CredentialStore
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, u User) (int64, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT id, username, password_hash, email FROM users WHERE username=$1`
	var u User
	if err := r.db.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT id, username, password_hash, email FROM users WHERE id=$1`
	var u User
	if err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Create inserts u. A positive u.ID is kept so that ids from the users file
// stay stable across stores; otherwise the sequence assigns one.
func (r *PgUserRepository) Create(ctx context.Context, u User) (int64, error) {
	var id int64
	if u.ID > 0 {
		const q = `INSERT INTO users (id, username, password_hash, email) VALUES ($1,$2,$3,$4) RETURNING id`
		if err := r.db.QueryRow(ctx, q, u.ID, u.Username, u.PasswordHash, u.Email).Scan(&id); err != nil {
			return 0, err
		}
		// keep the sequence ahead of explicit ids
		if _, err := r.db.Exec(ctx, `SELECT setval(pg_get_serial_sequence('users','id'), GREATEST((SELECT MAX(id) FROM users), 1))`); err != nil {
			return 0, err
		}
		return id, nil
	}
	const q = `INSERT INTO users (username, password_hash, email) VALUES ($1,$2,$3) RETURNING id`
	if err := r.db.QueryRow(ctx, q, u.Username, u.PasswordHash, u.Email).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
