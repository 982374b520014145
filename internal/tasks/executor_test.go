package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/storage"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/synth"
)

// fakeChunks is a ChunkSynthesizer whose behavior is set per test.
type fakeChunks struct {
	fn func(ctx context.Context, index int, text string) (synth.Audio, error)
}

func (f *fakeChunks) Synthesize(ctx context.Context, index int, text string, _ domain.VoiceProfile) (synth.Audio, error) {
	return f.fn(ctx, index, text)
}

// echoAudio returns the chunk text as opaque audio so artifacts can be compared to the input.
func echoAudio(_ context.Context, _ int, text string) (synth.Audio, error) {
	return synth.Audio{Data: []byte(text), ContentType: synth.ContentTypeMP3}, nil
}

// memRecorder keeps recorded outcomes in memory.
type memRecorder struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func (m *memRecorder) Record(_ context.Context, o domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memRecorder) all() []domain.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Outcome(nil), m.outcomes...)
}

type harness struct {
	registry *Registry
	executor *Executor
	area     *storage.Area
	recorder *memRecorder
}

func newHarness(t *testing.T, cfg ExecutorConfig, s ChunkSynthesizer) *harness {
	t.Helper()
	area, err := storage.NewArea(t.TempDir())
	require.NoError(t, err)

	reg := NewRegistry(NewEventBus(1000))
	rec := &memRecorder{}
	exec := NewExecutor(cfg, reg, s, area, rec)
	return &harness{registry: reg, executor: exec, area: area, recorder: rec}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.executor.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.executor.Stop(ctx)
	})
}

func waitForState(t *testing.T, reg *Registry, id string, want domain.TaskState) domain.Task {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := reg.Status(id)
		return err == nil && st.State == want
	}, 5*time.Second, 5*time.Millisecond, "task %s never reached %s", id, want)

	task, err := reg.Task(id)
	require.NoError(t, err)
	return task
}

func readArtifact(t *testing.T, area *storage.Area, id string) []byte {
	t.Helper()
	r, err := area.Acquire(id)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

// TestExecutorHelloWorld submits a short text through the tone engine and
// downloads a non-empty WAV artifact.
func TestExecutorHelloWorld(t *testing.T) {
	adapter := synth.NewAdapter(synth.NewToneSynthesizer(), time.Second)
	h := newHarness(t, ExecutorConfig{Workers: 1}, adapter)

	id, err := h.registry.Submit(context.Background(), "Hello world", defaultVoice)
	require.NoError(t, err)
	st, err := h.registry.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatePending, st.State)

	h.start(t)
	task := waitForState(t, h.registry, id, domain.TaskStateCompleted)
	assert.Equal(t, 100, task.Progress)

	handle, err := h.registry.Artifact(id)
	require.NoError(t, err)
	assert.Equal(t, synth.ContentTypeWAV, handle.ContentType)

	data := readArtifact(t, h.area, id)
	assert.NotEmpty(t, data)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, handle.Size, int64(len(data)))

	var states []domain.TaskState
	for _, ev := range h.registry.Events().Since(0) {
		if len(states) == 0 || states[len(states)-1] != ev.State {
			states = append(states, ev.State)
		}
	}
	assert.Equal(t, []domain.TaskState{
		domain.TaskStatePending,
		domain.TaskStateProcessing,
		domain.TaskStateCompleted,
	}, states)
}

// TestExecutorProgressIsMonotonic samples progress events of a multi-chunk task.
func TestExecutorProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, ExecutorConfig{Workers: 1, ChunkSize: 4}, &fakeChunks{fn: echoAudio})
	h.start(t)

	input := strings.Repeat("abc ", 30)
	id, err := h.registry.Submit(context.Background(), input, defaultVoice)
	require.NoError(t, err)
	waitForState(t, h.registry, id, domain.TaskStateCompleted)

	last := -1
	var final Event
	for _, ev := range h.registry.Events().Since(0) {
		if ev.State == domain.TaskStateProcessing {
			assert.GreaterOrEqual(t, ev.Progress, last)
			last = ev.Progress
		}
		final = ev
	}
	assert.Equal(t, domain.TaskStateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, []byte(input), readArtifact(t, h.area, id))
}

// TestExecutorParallelWindowKeepsOrder finishes chunks out of order and
// expects the artifact in input order.
func TestExecutorParallelWindowKeepsOrder(t *testing.T) {
	s := &fakeChunks{fn: func(ctx context.Context, index int, text string) (synth.Audio, error) {
		time.Sleep(time.Duration(5-index%4) * time.Millisecond)
		return echoAudio(ctx, index, text)
	}}
	h := newHarness(t, ExecutorConfig{Workers: 1, ChunkSize: 6, ChunkParallelism: 4}, s)
	h.start(t)

	input := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	id, err := h.registry.Submit(context.Background(), input, defaultVoice)
	require.NoError(t, err)
	waitForState(t, h.registry, id, domain.TaskStateCompleted)

	assert.Equal(t, input, string(readArtifact(t, h.area, id)))
}

// TestExecutorFailureIsolation fails one task while another runs alongside it.
func TestExecutorFailureIsolation(t *testing.T) {
	s := &fakeChunks{fn: func(ctx context.Context, index int, text string) (synth.Audio, error) {
		if strings.Contains(text, "FAIL") {
			return synth.Audio{}, &synth.ChunkError{Index: index, Err: errors.New("engine crashed")}
		}
		time.Sleep(time.Millisecond)
		return echoAudio(ctx, index, text)
	}}
	h := newHarness(t, ExecutorConfig{Workers: 2, ChunkSize: 5}, s)
	h.start(t)

	good := strings.Repeat("fine ", 20)
	a, err := h.registry.Submit(context.Background(), "some text then FAIL here", defaultVoice)
	require.NoError(t, err)
	b, err := h.registry.Submit(context.Background(), good, defaultVoice)
	require.NoError(t, err)

	failed := waitForState(t, h.registry, a, domain.TaskStateFailed)
	done := waitForState(t, h.registry, b, domain.TaskStateCompleted)

	assert.Contains(t, failed.Error, "engine crashed")
	assert.Less(t, failed.Progress, 100)
	assert.Empty(t, failed.ArtifactPath)
	_, ok := h.area.Lookup(a)
	assert.False(t, ok, "failed task must not publish an artifact")

	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, []byte(good), readArtifact(t, h.area, b))

	entries, err := os.ReadDir(filepath.Join(h.area.Root(), "artifacts", ".partial"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial artifacts must be discarded")
}

// TestExecutorOverloaded fills the queue of an idle executor.
func TestExecutorOverloaded(t *testing.T) {
	h := newHarness(t, ExecutorConfig{Workers: 1, QueueDepth: 2}, &fakeChunks{fn: echoAudio})

	for i := 0; i < 2; i++ {
		_, err := h.registry.Submit(context.Background(), "queued", defaultVoice)
		require.NoError(t, err)
	}
	id, err := h.registry.Submit(context.Background(), "one too many", defaultVoice)
	assert.ErrorIs(t, err, domain.ErrOverloaded)
	assert.Empty(t, id)
	assert.Len(t, h.registry.List(), 2)
	assert.Equal(t, 2, h.executor.Pending())

	h.start(t)
	for _, task := range h.registry.List() {
		waitForState(t, h.registry, task.ID, domain.TaskStateCompleted)
	}
}

// TestExecutorRetriesChunk lets the first attempt fail and the retry succeed.
func TestExecutorRetriesChunk(t *testing.T) {
	var calls atomic.Int32
	s := &fakeChunks{fn: func(ctx context.Context, index int, text string) (synth.Audio, error) {
		if calls.Add(1) == 1 {
			return synth.Audio{}, &synth.ChunkError{Index: index, Err: errors.New("transient")}
		}
		return echoAudio(ctx, index, text)
	}}
	h := newHarness(t, ExecutorConfig{Workers: 1, ChunkRetries: 2, RetryBackoff: time.Millisecond}, s)
	h.start(t)

	id, err := h.registry.Submit(context.Background(), "retry me", defaultVoice)
	require.NoError(t, err)
	waitForState(t, h.registry, id, domain.TaskStateCompleted)
	assert.Equal(t, int32(2), calls.Load())
}

// TestExecutorChunkTimeout fails a task whose engine never answers.
func TestExecutorChunkTimeout(t *testing.T) {
	engine := &blockingEngine{}
	adapter := synth.NewAdapter(engine, 20*time.Millisecond)
	h := newHarness(t, ExecutorConfig{Workers: 1}, adapter)
	h.start(t)

	id, err := h.registry.Submit(context.Background(), "never spoken", defaultVoice)
	require.NoError(t, err)
	task := waitForState(t, h.registry, id, domain.TaskStateFailed)
	assert.Contains(t, task.Error, "timed out")
}

// blockingEngine is a synth.Synthesizer that waits for its context to end.
type blockingEngine struct{}

func (blockingEngine) Synthesize(ctx context.Context, _ string, _ domain.VoiceProfile) (synth.Audio, error) {
	<-ctx.Done()
	return synth.Audio{}, ctx.Err()
}

func (blockingEngine) Voices(context.Context) ([]domain.Voice, error) {
	return nil, nil
}

// TestExecutorCancelBetweenChunks cancels a task while its first chunk is
// being synthesized.
func TestExecutorCancelBetweenChunks(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s := &fakeChunks{fn: func(ctx context.Context, index int, text string) (synth.Audio, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return echoAudio(ctx, index, text)
	}}
	h := newHarness(t, ExecutorConfig{Workers: 1, ChunkSize: 4}, s)
	h.start(t)

	id, err := h.registry.Submit(context.Background(), "one two three four five", defaultVoice)
	require.NoError(t, err)

	<-started
	require.NoError(t, h.registry.Cancel(id))
	close(release)

	require.Eventually(t, func() bool {
		for _, o := range h.recorder.all() {
			if o.TaskID == id {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	st, err := h.registry.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCancelled, st.State)
	_, ok := h.area.Lookup(id)
	assert.False(t, ok)

	outcomes := h.recorder.all()
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.TaskStateCancelled, outcomes[0].State)
}

// TestExecutorZeroChunks completes a task with no text to speak with an empty artifact.
func TestExecutorZeroChunks(t *testing.T) {
	h := newHarness(t, ExecutorConfig{Workers: 1}, &fakeChunks{fn: echoAudio})

	now := time.Now().UTC()
	h.registry.tasks["empty"] = &record{task: domain.Task{
		ID:        "empty",
		State:     domain.TaskStatePending,
		Voice:     defaultVoice,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	h.executor.process(context.Background(), "empty")

	task, err := h.registry.Task("empty")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, task.State)
	assert.Equal(t, 100, task.Progress)

	handle, err := h.registry.Artifact("empty")
	require.NoError(t, err)
	assert.Zero(t, handle.Size)
	assert.Empty(t, readArtifact(t, h.area, "empty"))
}

// TestExecutorRecordsOutcomes checks the journal receives terminal states.
func TestExecutorRecordsOutcomes(t *testing.T) {
	h := newHarness(t, ExecutorConfig{Workers: 1}, &fakeChunks{fn: echoAudio})
	h.start(t)

	id, err := h.registry.Submit(context.Background(), "journal me", defaultVoice)
	require.NoError(t, err)
	waitForState(t, h.registry, id, domain.TaskStateCompleted)

	require.Eventually(t, func() bool { return len(h.recorder.all()) == 1 }, time.Second, 5*time.Millisecond)
	o := h.recorder.all()[0]
	assert.Equal(t, id, o.TaskID)
	assert.Equal(t, domain.TaskStateCompleted, o.State)
	assert.Equal(t, int64(len("journal me")), o.Bytes)
	assert.Equal(t, 1, o.Chunks)
}

// TestExecutorStopDrainsQueue stops the executor with work still queued.
func TestExecutorStopDrainsQueue(t *testing.T) {
	h := newHarness(t, ExecutorConfig{Workers: 2}, &fakeChunks{fn: echoAudio})

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := h.registry.Submit(context.Background(), "drain", defaultVoice)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	h.executor.Start(context.Background())
	require.NoError(t, h.executor.Stop(context.Background()))

	for _, id := range ids {
		st, err := h.registry.Status(id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCompleted, st.State)
	}

	_, err := h.registry.Submit(context.Background(), "late", defaultVoice)
	assert.ErrorIs(t, err, domain.ErrOverloaded)
}

func TestProgressOf(t *testing.T) {
	assert.Equal(t, 0, progressOf(0, 3))
	assert.Equal(t, 33, progressOf(1, 3))
	assert.Equal(t, 67, progressOf(2, 3))
	assert.Equal(t, 100, progressOf(3, 3))
	assert.Equal(t, 100, progressOf(0, 0))
}
