package db

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	first := migrations[0]
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "001_init.sql", first.Name)
	assert.True(t, strings.Contains(first.SQL, "appointments_active_slot_uidx"),
		"initial schema must carry the active-slot unique index")
	assert.True(t, strings.Contains(first.SQL, "WHERE status IN ('pending', 'confirmed')"))
}

func TestLoadMigrations_OrderAndFiltering(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql":  {Data: []byte("SELECT 10;")},
		"m/002_second.sql": {Data: []byte("SELECT 2;")},
		"m/001_first.sql":  {Data: []byte("SELECT 1;")},
		"m/README.md":      {Data: []byte("docs")},
		"m/draft.sql":      {Data: []byte("SELECT 0;")},
		"m/abc_bad.sql":    {Data: []byte("SELECT 0;")},
	}

	migrations, err := loadMigrations(fsys, "m")
	require.NoError(t, err)

	var versions []int
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []int{1, 2, 10}, versions)
	assert.Equal(t, "SELECT 2;", migrations[1].SQL)
}
