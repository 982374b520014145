package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv points every path at a temp dir and selects the offline engine.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TTS_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("TTS_SETTINGS", filepath.Join(dir, "settings.yaml"))
	t.Setenv("TTS_HISTORY_DB", filepath.Join(dir, "history.db"))
	t.Setenv("TTS_ENGINE", "tone")
	t.Setenv("TTS_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "convert", "voices", "settings", "history", "doctor", "version"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestConvertTextWritesAudio(t *testing.T) {
	dir := testEnv(t)
	dst := filepath.Join(dir, "out", "hello.wav")

	out, err := run(t, "convert", "--text", "Hello world from the command line.", "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	out, err = run(t, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestConvertFile(t *testing.T) {
	dir := testEnv(t)
	doc := filepath.Join(dir, "chapter.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Once upon a time."), 0o644))
	dst := filepath.Join(dir, "chapter.wav")

	_, err := run(t, "convert", "--file", doc, "-o", dst, "--rate", "300")
	require.NoError(t, err)
	_, err = os.Stat(dst)
	assert.NoError(t, err)
}

func TestConvertRequiresInput(t *testing.T) {
	testEnv(t)

	_, err := run(t, "convert", "-o", "x.wav")
	assert.Error(t, err)

	_, err = run(t, "convert", "--text", "a", "--url", "https://example.com")
	assert.Error(t, err)

	_, err = run(t, "convert", "--text", "hi", "--volume", "4", "-o", filepath.Join(t.TempDir(), "x.wav"))
	assert.ErrorContains(t, err, "volume")

	_, err = run(t, "convert", "--text", "hi", "--volume", "NaN", "-o", filepath.Join(t.TempDir(), "x.wav"))
	assert.ErrorContains(t, err, "volume")
}

func TestSettingsSetAndShow(t *testing.T) {
	testEnv(t)

	_, err := run(t, "settings", "set", "--voice", "tone-low", "--rate", "180", "--pause", "300")
	require.NoError(t, err)

	out, err := run(t, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "voice_id: tone-low")
	assert.Contains(t, out, "rate: 180")
	assert.Contains(t, out, "chunk_size: 1000")
	assert.Contains(t, out, "pause_ms: 300")

	_, err = run(t, "settings", "set", "--rate", "5")
	assert.Error(t, err)
}

func TestVoicesListsToneVoices(t *testing.T) {
	testEnv(t)

	out, err := run(t, "voices")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ID"))
	assert.Contains(t, out, "tone-mid")
}

func TestHistoryDisabled(t *testing.T) {
	testEnv(t)

	out, err := run(t, "history", "--history-db", "off")
	require.NoError(t, err)
	assert.Contains(t, out, "History is disabled.")
}

func TestDoctorPassesWithToneEngine(t *testing.T) {
	testEnv(t)

	out, err := run(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "engine_tone")
	assert.NotContains(t, out, "FAIL")
}

func TestEngineFlagOverridesEnvironment(t *testing.T) {
	testEnv(t)

	_, err := run(t, "voices", "--engine", "festival")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	testEnv(t)

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ttsd dev")
}
