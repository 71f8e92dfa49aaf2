package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationFiles(t *testing.T) {
	files := listMigrationFiles(Migrations, migrationsDir)
	require.NotEmpty(t, files)
	assert.Equal(t, "000001_conversation_states.up.sql", files[0])
	for _, f := range files {
		assert.NotContains(t, f, ".down.")
	}
}

func TestCountApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	assert.Equal(t, 2, countApplied(files, 1, 3))
	assert.Equal(t, 0, countApplied(files, 3, 3))
	assert.Equal(t, 3, countApplied(files, 0, 3))
}

func TestRunMigrationsSQLite(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db, DialectSQLite))
	// second run is a no-op
	require.NoError(t, RunMigrations(db, DialectSQLite))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM conversation_states`))
	assert.Equal(t, 0, n)
}
