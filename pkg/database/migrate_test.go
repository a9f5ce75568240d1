package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedByName(t *testing.T) {
	migrations := fstest.MapFS{
		"003_oauth.up.sql":    {Data: []byte("CREATE TABLE oauth_clients ();")},
		"001_accounts.up.sql": {Data: []byte("CREATE TABLE accounts ();")},
		"002_resets.up.sql":   {Data: []byte("CREATE TABLE password_resets ();")},
	}

	names, err := migrationFiles(migrations)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_accounts.up.sql",
		"002_resets.up.sql",
		"003_oauth.up.sql",
	}, names)
}

func TestMigrationFiles_SkipsNonMigrationEntries(t *testing.T) {
	migrations := fstest.MapFS{
		"001_accounts.up.sql":    {Data: []byte("CREATE TABLE accounts ();")},
		"001_accounts.down.sql":  {Data: []byte("DROP TABLE accounts;")},
		"README.md":              {Data: []byte("schema notes")},
		"archive/000_old.up.sql": {Data: []byte("-- superseded")},
	}

	names, err := migrationFiles(migrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_accounts.up.sql"}, names)
}

func TestMigrationFiles_EmptyDir(t *testing.T) {
	names, err := migrationFiles(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, names)
}
