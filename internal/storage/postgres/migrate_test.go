package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	ms, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	assert.Equal(t, "0001_init", ms[0].Version)
	for _, table := range []string{"users", "projects", "project_files"} {
		assert.Contains(t, ms[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, ms[0].SQL, "ON DELETE CASCADE")
	assert.Contains(t, ms[0].SQL, "WHERE kind = 'file'")
}
