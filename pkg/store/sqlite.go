// Package store provides a durable, sqlite-backed Conversation State Store.
// The in-memory conversation.Store (spec.md §4.1) is the orchestrator's
// primary implementation; SQLiteStore is the durable one, letting a
// conversation survive a process restart and giving operators a single
// storage.db file to back up or inspect.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// DefaultDBPath returns the default storage.db location, honoring
// FORGE_BASE_PATH the way the teacher's db package honors KODELET_BASE_PATH.
func DefaultDBPath() (string, error) {
	if basePath := os.Getenv("FORGE_BASE_PATH"); basePath != "" {
		return filepath.Join(basePath, "storage.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "get home directory")
	}
	return filepath.Join(home, ".forge", "storage.db"), nil
}

// SQLiteStore persists Conversations as JSON blobs keyed by id. Its
// Find/Upsert/Delete mirror conversation.Store's operations but take a
// context and return an error; the orchestrator works on a
// *conversation.Store, so this type serves as a durable snapshot target for
// the in-memory Store rather than backing the orchestrator directly.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens or creates a sqlite database at dbPath, configures it for
// WAL-mode concurrent access, and ensures the conversations table exists.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "configure database")
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate schema")
	}
	return s, nil
}

// configure sets the WAL-mode pragmas the teacher's pkg/db.Configure uses,
// verifying journal_mode actually took since some filesystems (notably
// network mounts) silently refuse WAL.
func configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := db.ExecContext(pctx, p)
		cancel()
		if err != nil {
			return errors.Wrapf(err, "execute pragma %s", p)
		}
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var journalMode string
	if err := db.GetContext(ctx, &journalMode, "PRAGMA journal_mode"); err != nil {
		return errors.Wrap(err, "query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled, got %q", journalMode)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Find loads and decodes the conversation with the given id.
func (s *SQLiteStore) Find(ctx context.Context, id string) (forgetype.Conversation, bool, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return forgetype.Conversation{}, false, nil
	}
	if err != nil {
		return forgetype.Conversation{}, false, errors.Wrap(err, "query conversation")
	}

	var conv forgetype.Conversation
	if err := json.Unmarshal([]byte(payload), &conv); err != nil {
		return forgetype.Conversation{}, false, errors.Wrap(err, "decode conversation")
	}
	return conv, true, nil
}

// Upsert persists conv, replacing any prior snapshot under the same id.
func (s *SQLiteStore) Upsert(ctx context.Context, conv forgetype.Conversation) error {
	payload, err := json.Marshal(conv)
	if err != nil {
		return errors.Wrap(err, "encode conversation")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, conv.ID, string(payload))
	if err != nil {
		return errors.Wrap(err, "upsert conversation")
	}
	return nil
}

// Delete removes a conversation snapshot. Deleting an absent id is not an
// error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return errors.Wrap(err, "delete conversation")
}

// List returns every stored conversation id, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT id FROM conversations ORDER BY updated_at DESC`)
	return ids, errors.Wrap(err, "list conversations")
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
