// Package sqlstore persists conversation states in the conversation_states table through sqlx.
// It works on postgres (lib/pq) and sqlite (modernc.org/sqlite); the schema is applied by
// database.RunMigrations.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jmoiron/sqlx"

	"log/slog"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/state"
)

const (
	selectQuery = `SELECT variant, payload FROM conversation_states
WHERE chat_id = ? AND thread_id = ? AND has_thread = ?`

	upsertQuery = `INSERT INTO conversation_states (chat_id, thread_id, has_thread, variant, payload, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (chat_id, thread_id, has_thread)
DO UPDATE SET variant = excluded.variant, payload = excluded.payload, updated_at = excluded.updated_at`

	deleteQuery = `DELETE FROM conversation_states
WHERE chat_id = ? AND thread_id = ? AND has_thread = ?`

	keysQuery = `SELECT chat_id, thread_id, has_thread FROM conversation_states
WHERE variant = ? ORDER BY chat_id, thread_id`
)

type row struct {
	ChatID    int64  `db:"chat_id"`
	ThreadID  int64  `db:"thread_id"`
	HasThread bool   `db:"has_thread"`
	Variant   string `db:"variant"`
	Payload   string `db:"payload"`
}

// Store is a state.Store backed by SQL. Variant values are stored as their schema name plus
// a JSON payload, so variant types must round-trip through encoding/json.
type Store[S any] struct {
	db     *sqlx.DB
	schema *state.Schema[S]
	now    func() time.Time

	selectQ string
	upsertQ string
	deleteQ string
	keysQ   string
}

// New binds a store to db. Queries are rebound to the driver's placeholder style.
func New[S any](db *sqlx.DB, schema *state.Schema[S]) *Store[S] {
	return &Store[S]{
		db:      db,
		schema:  schema,
		now:     func() time.Time { return time.Now().UTC() },
		selectQ: db.Rebind(selectQuery),
		upsertQ: db.Rebind(upsertQuery),
		deleteQ: db.Rebind(deleteQuery),
		keysQ:   db.Rebind(keysQuery),
	}
}

// Lookup loads and decodes the state for key.
func (s *Store[S]) Lookup(ctx context.Context, key state.Key) (S, bool, error) {
	var zero S
	var r row
	err := s.db.QueryRowxContext(ctx, s.selectQ, key.ChatID, int64(key.ThreadID), key.HasThread).StructScan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		logger.Error(ctx, "store", "store.lookup",
			slog.String("status", "fail"),
			slog.String("key", key.String()),
			slog.String("err", err.Error()),
		)
		return zero, false, fmt.Errorf("sqlstore lookup %s: %w", key, err)
	}
	value, err := s.decode(r.Variant, r.Payload)
	if err != nil {
		return zero, false, fmt.Errorf("sqlstore lookup %s: %w", key, err)
	}
	return value, true, nil
}

// Put upserts the state for key.
func (s *Store[S]) Put(ctx context.Context, key state.Key, value S) (S, error) {
	var zero S
	variant, payload, err := s.encode(value)
	if err != nil {
		return zero, fmt.Errorf("sqlstore put %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQ,
		key.ChatID, int64(key.ThreadID), key.HasThread, variant, payload, s.now(),
	); err != nil {
		logger.Error(ctx, "store", "store.put",
			slog.String("status", "fail"),
			slog.String("key", key.String()),
			slog.String("state", variant),
			slog.String("err", err.Error()),
		)
		return zero, fmt.Errorf("sqlstore put %s: %w", key, err)
	}
	if logger.ShouldSample("store.put") {
		logger.Debug(ctx, "store", "store.put",
			slog.String("status", "ok"),
			slog.String("key", key.String()),
			slog.String("state", variant),
		)
	}
	return value, nil
}

// Erase deletes the state for key; deleting an absent key is not an error.
func (s *Store[S]) Erase(ctx context.Context, key state.Key) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQ, key.ChatID, int64(key.ThreadID), key.HasThread); err != nil {
		return fmt.Errorf("sqlstore erase %s: %w", key, err)
	}
	return nil
}

// KeysIn lists the conversations currently in variant v.
func (s *Store[S]) KeysIn(ctx context.Context, v state.Variant) ([]state.Key, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.keysQ, v.Name()); err != nil {
		return nil, fmt.Errorf("sqlstore keys in %s: %w", v, err)
	}
	keys := make([]state.Key, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, state.Key{ChatID: r.ChatID, ThreadID: int(r.ThreadID), HasThread: r.HasThread})
	}
	return keys, nil
}

func (s *Store[S]) encode(value S) (string, string, error) {
	v, ok := s.schema.Of(value)
	if !ok {
		return "", "", fmt.Errorf("%w: %T", state.ErrUnknownVariant, value)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return "", "", fmt.Errorf("encode %s: %w", v, err)
	}
	return v.Name(), string(payload), nil
}

func (s *Store[S]) decode(name, payload string) (S, error) {
	var zero S
	v, ok := s.schema.ByName(name)
	if !ok {
		return zero, fmt.Errorf("%w: stored variant %q", state.ErrUnknownVariant, name)
	}
	ptr := reflect.New(v.Type())
	if err := json.Unmarshal([]byte(payload), ptr.Interface()); err != nil {
		return zero, fmt.Errorf("decode %s: %w", v, err)
	}
	value, ok := ptr.Elem().Interface().(S)
	if !ok {
		return zero, fmt.Errorf("%w: %s does not implement the state type", state.ErrUnknownVariant, v)
	}
	return value, nil
}
