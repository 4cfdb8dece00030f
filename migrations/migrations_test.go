package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	for _, dbType := range []string{"mysql", "postgres"} {
		up, err := Load(dbType, "up")
		require.NoError(t, err)
		assert.Contains(t, up, "reconcile_runs")
		assert.Contains(t, up, "result_json")

		down, err := Load(dbType, "down")
		require.NoError(t, err)
		assert.Contains(t, down, "DROP TABLE")
	}

	_, err := Load("sqlite", "up")
	assert.Error(t, err)
	_, err = Load("mysql", "sideways")
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	sql := "-- header\nCREATE TABLE a (x TEXT DEFAULT 'a;b');\n\n-- second\nCREATE INDEX i ON a (x);\n"
	stmts := SplitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x TEXT DEFAULT 'a;b')", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE INDEX"))

	up, err := Load("postgres", "up")
	require.NoError(t, err)
	assert.Len(t, SplitStatements(up), 4)
}
