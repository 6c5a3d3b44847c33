// Package sqlite stores session documents in a local SQLite database, one
// row per (server, user) with the history kept as a JSON column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

// Store implements domain.SessionStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens dsn and runs migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			server_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			history TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (server_id, user_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type messageRow struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func encodeHistory(history []domain.Message) (string, error) {
	rows := make([]messageRow, 0, len(history))
	for _, m := range history {
		rows = append(rows, messageRow{Role: string(m.Role), Content: m.Content})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeHistory(raw string) ([]domain.Message, error) {
	var rows []messageRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, err
	}
	history := make([]domain.Message, 0, len(rows))
	for i, r := range rows {
		role := domain.Role(r.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("message %d has unknown role %q", i, r.Role)
		}
		history = append(history, domain.Message{Role: role, Content: r.Content})
	}
	return history, nil
}

// CreateSession inserts a new row; the primary key makes the existence check atomic.
func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	history, err := encodeHistory(session.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (server_id, user_id, history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (server_id, user_id) DO NOTHING`,
		session.Key.ServerID, session.Key.UserID, history, session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionAlreadyExists
	}
	return nil
}

// GetSession retrieves a session by key.
func (s *Store) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var (
		raw                  string
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT history, created_at, updated_at FROM sessions WHERE server_id = ? AND user_id = ?`,
		key.ServerID, key.UserID).Scan(&raw, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite GetSession: %w", err)
	}

	history, err := decodeHistory(raw)
	if err != nil {
		return nil, fmt.Errorf("sqlite GetSession %s: %w", key.String(), err)
	}

	return &domain.Session{
		Key:       key,
		History:   history,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *Store) ReplaceHistory(ctx context.Context, key domain.SessionKey, history []domain.Message, updatedAt domain.Timestamp) error {
	raw, err := encodeHistory(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET history = ?, updated_at = ? WHERE server_id = ? AND user_id = ?`,
		raw, updatedAt.UTC(), key.ServerID, key.UserID)
	if err != nil {
		return fmt.Errorf("sqlite ReplaceHistory: %w", err)
	}
	return requireRow(res, "ReplaceHistory")
}

func (s *Store) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE server_id = ? AND user_id = ?`,
		key.ServerID, key.UserID)
	if err != nil {
		return fmt.Errorf("sqlite DeleteSession: %w", err)
	}
	return requireRow(res, "DeleteSession")
}

// ListSessionsByServer returns the sessions of one server ordered by user.
func (s *Store) ListSessionsByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, history, created_at, updated_at FROM sessions WHERE server_id = ? ORDER BY user_id ASC`,
		serverID)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSessionsByServer: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var (
			userID, raw          string
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&userID, &raw, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		history, err := decodeHistory(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite ListSessionsByServer: %w", err)
		}
		out = append(out, &domain.Session{
			Key:       domain.SessionKey{ServerID: serverID, UserID: domain.UserID(userID)},
			History:   history,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		})
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite %s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
