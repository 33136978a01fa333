package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CRMDESK_LOG_LEVEL", "error")
	apikeyName = ""
	configFile = ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func useTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("CRMDESK_DB_PATH", filepath.Join(t.TempDir(), "crmdesk.db"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "crmdesk dev")
}

func TestMigrateCommand(t *testing.T) {
	useTempDB(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 3")
}

func TestAPIKeyCommands(t *testing.T) {
	useTempDB(t)

	_, err := execute(t, "apikey", "create")
	assert.Error(t, err, "name is required")

	out, err := execute(t, "apikey", "create", "--name", "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Created API key 1 (dashboard)")
	assert.Contains(t, out, "crm_")

	out, err = execute(t, "apikey", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "dashboard")
	assert.Contains(t, out, "active")

	_, err = execute(t, "apikey", "revoke", "1")
	require.NoError(t, err)

	out, err = execute(t, "apikey", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")

	_, err = execute(t, "apikey", "revoke", "1")
	assert.Error(t, err, "revoking twice fails")
}

func TestCheckCommandOnEmptyDatabase(t *testing.T) {
	useTempDB(t)

	out, err := execute(t, "check")
	require.NoError(t, err)

	var report struct {
		Summary struct {
			TotalUsers int `json:"totalUsers"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, 0, report.Summary.TotalUsers)
}

func TestRecommendUnknownUser(t *testing.T) {
	useTempDB(t)

	_, err := execute(t, "recommend", "missing")
	assert.ErrorContains(t, err, "not found")
}
