package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventA = `{"id": "evt-a", "title": "Jazz Night at Blue Note", "venue_name": "Blue Note",
		"start_time": "2025-03-01T20:00:00Z", "latitude": 40.7, "longitude": -74.0, "source_name": "venue_site"}`
	eventB = `{"id": "evt-b", "title": "Jazz Nite @ Blue Note NYC", "venue_name": "The Blue Note",
		"start_time": "2025-03-01T20:00:00Z", "latitude": 40.7001, "longitude": -74.0001, "price_min": 25, "source_name": "tickets"}`
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body), out.String())
	return body, nil
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "target.json", eventA)
	candidates := writeFile(t, dir, "candidates.json", `[`+eventB+`]`)

	body, err := run(t, "check", target, candidates)
	require.NoError(t, err)
	assert.Equal(t, true, body["is_duplicate"])

	_, err = run(t, "check", candidates, target)
	require.NoError(t, err, "a one element array is a single target")

	both := writeFile(t, dir, "both.json", `[`+eventA+`,`+eventB+`]`)
	_, err = run(t, "check", both, target)
	assert.Error(t, err)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	events := writeFile(t, dir, "events.json", `{"source": "feed", "events": [`+eventA+`,`+eventB+`]}`)
	history := filepath.Join(dir, "history.json")

	body, err := run(t, "batch", events, "--mode", "merge", "--history-out", history)
	require.NoError(t, err)
	assert.EqualValues(t, 1, body["merges_completed"])

	data, err := os.ReadFile(history)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries"`)

	_, err = run(t, "batch", events, "--mode", "shred", "--history-out", "")
	assert.Error(t, err)
}
