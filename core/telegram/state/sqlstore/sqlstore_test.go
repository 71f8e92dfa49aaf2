package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stater/core/database"
	"github.com/m3rciful/stater/core/telegram/state"
)

type flow interface{ isFlow() }

type askName struct{}

type askAge struct{ Name string }

type done struct {
	Name string
	Age  int
}

func (askName) isFlow() {}
func (askAge) isFlow()  {}
func (*done) isFlow()   {}

type stray struct{}

func (stray) isFlow() {}

func newStore(t *testing.T) *Store[flow] {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "states.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db, database.DialectSQLite))

	schema := state.MustSchema[flow](
		state.VariantOf[askName](),
		state.VariantOf[askAge](),
		state.VariantOf[*done](),
	)
	return New[flow](db, schema)
}

func TestStoreRoundTripsVariants(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := state.ThreadKey(-1001, 12)

	_, ok, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Put(ctx, key, askAge{Name: "ann"})
	require.NoError(t, err)
	got, ok, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, askAge{Name: "ann"}, got)

	_, err = s.Put(ctx, key, &done{Name: "ann", Age: 41})
	require.NoError(t, err)
	got, ok, err = s.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &done{Name: "ann", Age: 41}, got)
}

func TestStoreKeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Put(ctx, state.ChatKey(7), askName{})
	require.NoError(t, err)

	_, ok, err := s.Lookup(ctx, state.ThreadKey(7, 0))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Lookup(ctx, state.ChatKey(8))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreEraseAndKeysIn(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, k := range []state.Key{state.ChatKey(3), state.ChatKey(1), state.ThreadKey(2, 4)} {
		_, err := s.Put(ctx, k, askName{})
		require.NoError(t, err)
	}
	_, err := s.Put(ctx, state.ChatKey(9), askAge{})
	require.NoError(t, err)

	keys, err := s.KeysIn(ctx, state.VariantOf[askName]())
	require.NoError(t, err)
	assert.Equal(t, []state.Key{state.ChatKey(1), state.ThreadKey(2, 4), state.ChatKey(3)}, keys)

	require.NoError(t, s.Erase(ctx, state.ChatKey(1)))
	require.NoError(t, s.Erase(ctx, state.ChatKey(1)))
	_, ok, err := s.Lookup(ctx, state.ChatKey(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRejectsUnknownVariants(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Put(ctx, state.ChatKey(1), stray{})
	assert.ErrorIs(t, err, state.ErrUnknownVariant)

	_, err = s.db.ExecContext(ctx, s.upsertQ, int64(5), int64(0), false, "retired", "{}", s.now())
	require.NoError(t, err)
	_, _, err = s.Lookup(ctx, state.ChatKey(5))
	assert.ErrorIs(t, err, state.ErrUnknownVariant)
}
