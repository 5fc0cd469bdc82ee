package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":   {Data: []byte("SELECT 1;")},
		"002_second.sql":  {Data: []byte("SELECT 2;")},
		"001_initial.sql": {Data: []byte("SELECT 3;")},
		"README.md":       {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
}

func TestLoadMigrations_RejectsBadName(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"initial.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	logger := zap.NewNop()
	db, err := New(Config{Path: MemoryPath}, logger)
	require.NoError(t, err)
	defer db.Close()

	migrator := NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations(Migrations()))
	require.NoError(t, migrator.RunMigrations(Migrations()))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.Exec("SELECT id, version FROM expenses LIMIT 1")
	assert.NoError(t, err)
	_, err = db.Exec("SELECT id, expense_id FROM expense_attachments LIMIT 1")
	assert.NoError(t, err)
}
