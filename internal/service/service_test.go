package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/config"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/synth"
)

func testRuntime(t *testing.T) config.Runtime {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultRuntime()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SettingsPath = filepath.Join(dir, "settings.json")
	cfg.HistoryDB = filepath.Join(dir, "history.db")
	cfg.Engine = synth.EngineTone
	cfg.Workers = 1
	cfg.MaxUploadBytes = 1024
	return cfg
}

func newTestService(t *testing.T, cfg config.Runtime) *Service {
	t.Helper()
	svc, err := New(cfg, Options{})
	require.NoError(t, err)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func waitTerminal(t *testing.T, svc *Service, id string) domain.TaskStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := svc.Wait(ctx, id)
	require.NoError(t, err)
	return st
}

func TestSpeakUsesSavedSettingsForUnsetFields(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	_, err := svc.SaveSettings(domain.Settings{VoiceID: "tone-high", Rate: 150, Volume: 0.5, ChunkSize: 200, PauseMs: 250})
	require.NoError(t, err)

	rate := 300
	id, err := svc.Speak(context.Background(), SpeakRequest{Text: "hello there", Rate: &rate})
	require.NoError(t, err)

	task, err := svc.Task(id)
	require.NoError(t, err)
	assert.Equal(t, domain.VoiceProfile{VoiceID: "tone-high", Rate: 300, Volume: 0.5}, task.Voice)
	assert.Equal(t, 200, svc.executor.Config().ChunkSize)
	assert.Equal(t, 250*time.Millisecond, svc.executor.Config().Pause)
}

func TestSpeakRejectsOutOfRangeOverride(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	volume := 1.5
	_, err := svc.Speak(context.Background(), SpeakRequest{Text: "hello", Volume: &volume})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	assert.Empty(t, svc.List())
}

// TestSpeakExportAndHistory runs a full conversion and checks the exported
// file and the journal entry.
func TestSpeakExportAndHistory(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	id, err := svc.Speak(context.Background(), SpeakRequest{Text: "Hello world. This is a test."})
	require.NoError(t, err)

	st := waitTerminal(t, svc, id)
	require.Equal(t, domain.TaskStateCompleted, st.State, st.Error)
	assert.Equal(t, 100, st.Progress)

	dst := filepath.Join(t.TempDir(), "out", "speech.wav")
	require.NoError(t, svc.ExportArtifact(id, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	require.Eventually(t, func() bool {
		outcomes, err := svc.History(context.Background(), 10)
		return err == nil && len(outcomes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	outcomes, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, id, outcomes[0].TaskID)
	assert.Equal(t, domain.TaskStateCompleted, outcomes[0].State)
}

func TestHistoryDisabled(t *testing.T) {
	cfg := testRuntime(t)
	cfg.HistoryDB = "off"
	svc := newTestService(t, cfg)

	outcomes, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.SettingsPath), "history.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportArtifactBeforeCompletion(t *testing.T) {
	svc, err := New(testRuntime(t), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	id, err := svc.Speak(context.Background(), SpeakRequest{Text: "never started"})
	require.NoError(t, err)

	err = svc.ExportArtifact(id, filepath.Join(t.TempDir(), "a.wav"))
	assert.ErrorIs(t, err, domain.ErrNotReady)
	_, err = svc.OpenArtifact("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvictCompletedTask(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	id, err := svc.Speak(context.Background(), SpeakRequest{Text: "short lived"})
	require.NoError(t, err)
	waitTerminal(t, svc, id)

	require.NoError(t, svc.Evict(id))
	_, err = svc.Status(id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.OpenArtifact(id)
	assert.ErrorIs(t, err, domain.ErrGone)
}

func TestExtractUpload(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	text, err := svc.ExtractUpload(context.Background(), "notes.txt", strings.NewReader("Read me aloud."))
	require.NoError(t, err)
	assert.Equal(t, "Read me aloud.", strings.TrimSpace(text))

	uploads, err := os.ReadDir(filepath.Join(svc.Config().DataDir, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, uploads, "uploads are removed after extraction")
}

func TestExtractUploadLimits(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	_, err := svc.ExtractUpload(context.Background(), "big.txt", strings.NewReader(strings.Repeat("a", 2048)))
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)

	_, err = svc.ExtractUpload(context.Background(), "image.png", strings.NewReader("png"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestSaveSettingsRejectsInvalid(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	_, err := svc.SaveSettings(domain.Settings{Rate: 10, Volume: 0.5, ChunkSize: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	assert.Equal(t, config.DefaultSettings(), svc.Settings())
}

func TestVoicesAndDiagnostics(t *testing.T) {
	svc := newTestService(t, testRuntime(t))

	voices, err := svc.Voices(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, voices)

	report := svc.Diagnostics(context.Background())
	item, ok := report.Item("engine_tone")
	require.True(t, ok)
	assert.Equal(t, domain.DiagnosticStatusPass, item.Status)
	dataDir, ok := report.Item("data_dir")
	require.True(t, ok)
	assert.Equal(t, domain.DiagnosticStatusPass, dataDir.Status)
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	cfg := testRuntime(t)
	cfg.Engine = "festival"
	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}
