package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T, name string) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+name+"?mode=memory&cache=shared")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NATS_URL", "")
}

func TestMigrateCommand(t *testing.T) {
	useSQLite(t, "ctl_migrate")

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema is up to date")
}

func TestDetectCommand_EmptyParish(t *testing.T) {
	useSQLite(t, "ctl_detect")

	out, err := run(t, "detect", "--parish", "1", "--start", "2025-06-10", "--end", "2025-06-10")
	require.NoError(t, err)

	var resp struct {
		Evaluated int  `json:"evaluated"`
		Applied   bool `json:"applied"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 0, resp.Evaluated)
	assert.False(t, resp.Applied)
}

func TestDetectCommand_BadDate(t *testing.T) {
	useSQLite(t, "ctl_bad_date")

	_, err := run(t, "detect", "--parish", "1", "--start", "06/10/2025", "--end", "2025-06-10")
	assert.Error(t, err)
}

func TestEvaluateCommand_InvalidID(t *testing.T) {
	_, err := run(t, "evaluate", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid call id")
}
