package facades

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
)

const createSendersTable = `
CREATE TABLE IF NOT EXISTS senders (
    email        VARCHAR(320) NOT NULL PRIMARY KEY,
    app_password VARCHAR(255) NOT NULL
)`

type MySQLSendersFacade struct {
	db *sql.DB
}

func NewMySQLDsnFromEnv() string {
	host := os.Getenv("MYSQL_HOST")
	port := os.Getenv("MYSQL_PORT")
	user := os.Getenv("MYSQL_USER")
	password := os.Getenv("MYSQL_PASSWORD")
	database := os.Getenv("MYSQL_DATABASE")

	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "3306"
	}
	if user == "" {
		user = "root"
	}
	if password == "" {
		password = "test"
	}
	if database == "" {
		database = "bulkmail_test"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", user, password, host, port, database)
}

func NewMySQLSendersFacade(ctx context.Context) (*MySQLSendersFacade, error) {
	db, err := sql.Open("mysql", NewMySQLDsnFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	if _, err := db.ExecContext(ctx, createSendersTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create senders table: %w", err)
	}

	return &MySQLSendersFacade{db: db}, nil
}

func (f *MySQLSendersFacade) Close() error {
	return f.db.Close()
}

func (f *MySQLSendersFacade) AddSender(ctx context.Context, email, appPassword string) error {
	_, err := f.db.ExecContext(ctx,
		"REPLACE INTO senders (email, app_password) VALUES (?, ?)", email, appPassword)
	if err != nil {
		return fmt.Errorf("failed to add sender %s: %w", email, err)
	}
	return nil
}

func (f *MySQLSendersFacade) DeleteSender(ctx context.Context, email string) error {
	_, err := f.db.ExecContext(ctx, "DELETE FROM senders WHERE email = ?", email)
	if err != nil {
		return fmt.Errorf("failed to delete sender %s: %w", email, err)
	}
	return nil
}
