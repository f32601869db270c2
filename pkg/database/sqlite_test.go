package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:         filepath.Join(t.TempDir(), "nested", "history.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRunMigrations_CreatesBatchesTableOnce(t *testing.T) {
	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	require.NoError(t, migrator.RunMigrations(context.Background()))
	require.NoError(t, migrator.RunMigrations(context.Background()))

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)

	_, err := db.Exec(`INSERT INTO batches (id, overall_status, analyses_json, created_at)
		VALUES ('b1', 'All Declined', '[]', CURRENT_TIMESTAMP)`)
	assert.NoError(t, err)
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("SELECT 2;")},
		"m/001_first.sql":  {Data: []byte("SELECT 1;")},
		"m/README.md":      {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "second", migrations[1].Name)
}

func TestLoadMigrations_RejectsBadFilename(t *testing.T) {
	fsys := fstest.MapFS{"m/init.sql": {Data: []byte("SELECT 1;")}}

	_, err := loadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	err = db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Zero(t, n)
}
