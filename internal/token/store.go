package token

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// User is a stored account: credentials plus the identity tags the account
// holds for authorization purposes.
type User struct {
	ID            string         `db:"id"`
	Username      string         `db:"username"`
	PasswordHash  string         `db:"password_hash"`
	PrincipalTags pq.StringArray `db:"principals"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Store defines user storage operations.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) error
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a new user store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u,
		`SELECT id, username, password_hash, principals, created_at FROM users WHERE username = $1`,
		username)
	return u, err
}

func (s *store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, principals) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.PrincipalTags)
	return err
}
