// Package archive persists messages in sqlite so channel windows can be
// warmed without going to the platform.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	_ "github.com/glebarez/go-sqlite"

	"chatview-server/internal/types"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_channel_time ON messages (channel_id, created_at);`

// Store is a sqlite-backed message archive. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the archive at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	log.Info("message archive opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// Save inserts m or replaces the stored copy.
func (s *Store) Save(ctx context.Context, m types.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, created_at, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET channel_id = excluded.channel_id, created_at = excluded.created_at, payload = excluded.payload`,
		m.ID, m.ChannelID, m.CreatedAt.UnixMilli(), payload)
	if err != nil {
		return fmt.Errorf("store message %s: %w", m.ID, err)
	}
	return nil
}

// SaveAll stores msgs in one transaction.
func (s *Store) SaveAll(ctx context.Context, msgs []types.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO messages (id, channel_id, created_at, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.ChannelID, m.CreatedAt.UnixMilli(), payload); err != nil {
			return fmt.Errorf("store message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes a message. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND channel_id = ?`, messageID, channelID)
	return err
}

// Recent returns up to limit of the channel's newest messages, oldest first.
// Rows that no longer decode are skipped.
func (s *Store) Recent(ctx context.Context, channelID string, limit int) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM messages WHERE channel_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var m types.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			s.log.Warn("skipping undecodable archived message", "message_id", id, "error", err)
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
