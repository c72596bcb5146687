package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type sqlDBInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectSenderQuery = "SELECT email, app_password FROM senders WHERE email = ? LIMIT 1"

type MySQLStore struct {
	db sqlDBInterface
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Resolve(ctx context.Context, senderId string) (Credentials, error) {
	var creds Credentials

	err := s.db.QueryRowContext(ctx, selectSenderQuery, senderId).Scan(&creds.LoginIdentity, &creds.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrSenderNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to query sender: %w", err)
	}

	return creds, nil
}
