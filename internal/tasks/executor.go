package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/chunk"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/storage"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/synth"
)

// ExecutorConfig sizes the worker pool and the per-chunk policy.
type ExecutorConfig struct {
	Workers          int
	QueueDepth       int
	ChunkSize        int
	ChunkParallelism int
	ChunkRetries     int
	RetryBackoff     time.Duration
	Pause            time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunk.DefaultSize
	}
	if c.ChunkParallelism <= 0 {
		c.ChunkParallelism = 1
	}
	if c.ChunkRetries < 0 {
		c.ChunkRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Recorder persists terminal outcomes. history.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, outcome domain.Outcome) error
}

// ChunkSynthesizer is the per-chunk synthesis call. synth.Adapter implements it.
type ChunkSynthesizer interface {
	Synthesize(ctx context.Context, index int, chunk string, voice domain.VoiceProfile) (synth.Audio, error)
}

// Executor runs queued tasks on a fixed pool of workers.
type Executor struct {
	cfg      ExecutorConfig
	registry *Registry
	synth    ChunkSynthesizer
	area     *storage.Area
	recorder Recorder

	queue     chan string
	chunkSize atomic.Int64
	pause     atomic.Int64

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExecutor creates an executor and registers it as the registry's scheduler.
// recorder may be nil.
func NewExecutor(cfg ExecutorConfig, registry *Registry, synthesizer ChunkSynthesizer, area *storage.Area, recorder Recorder) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:      cfg,
		registry: registry,
		synth:    synthesizer,
		area:     area,
		recorder: recorder,
		queue:    make(chan string, cfg.QueueDepth),
	}
	e.chunkSize.Store(int64(cfg.ChunkSize))
	e.pause.Store(int64(cfg.Pause))
	registry.SetScheduler(e)
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() ExecutorConfig {
	cfg := e.cfg
	cfg.ChunkSize = int(e.chunkSize.Load())
	cfg.Pause = time.Duration(e.pause.Load())
	return cfg
}

// SetChunkSize changes the chunk size used for tasks picked up afterwards.
func (e *Executor) SetChunkSize(n int) {
	if n <= 0 {
		n = chunk.DefaultSize
	}
	e.chunkSize.Store(int64(n))
}

// SetPause changes the silence between chunks for tasks picked up afterwards.
func (e *Executor) SetPause(d time.Duration) {
	e.pause.Store(int64(max(d, 0)))
}

// Start launches the workers. Cancelling ctx aborts in-flight synthesis.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(runCtx, i)
	}

	logger.InfoCF("executor", "Executor started", map[string]any{
		"workers":     e.cfg.Workers,
		"queue_depth": e.cfg.QueueDepth,
		"chunk_size":  e.chunkSize.Load(),
	})
}

// Enqueue schedules a task without blocking. A full queue fails with
// domain.ErrOverloaded.
func (e *Executor) Enqueue(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("%w: executor is stopped", domain.ErrOverloaded)
	}
	select {
	case e.queue <- id:
		return nil
	default:
		return fmt.Errorf("%w: %d tasks waiting", domain.ErrOverloaded, e.cfg.QueueDepth)
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Stop refuses new tasks and waits for queued and running ones. When ctx ends
// first, in-flight synthesis is cancelled and Stop returns ctx's error after
// the workers exit.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	started := e.started
	e.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Executor) worker(ctx context.Context, n int) {
	defer e.wg.Done()
	for id := range e.queue {
		e.process(ctx, id)
	}
	logger.DebugCF("executor", "Worker exited", map[string]any{"worker": n})
}

// process runs one task from Pending to a terminal state.
func (e *Executor) process(ctx context.Context, id string) {
	task, err := e.registry.Task(id)
	if err != nil {
		logger.WarnCF("executor", "Dropping unknown task", map[string]any{"task_id": id})
		return
	}
	if task.State != domain.TaskStatePending {
		logger.InfoCF("executor", "Skipping task", map[string]any{"task_id": id, "state": string(task.State)})
		e.abandon(task, 0)
		return
	}

	chunks := chunk.Collect(task.Input, int(e.chunkSize.Load()))
	total := len(chunks)
	if !e.update(id, Update{State: domain.TaskStateProcessing, Chunks: total}) {
		e.abandon(task, total)
		return
	}

	logger.InfoCF("executor", "Processing task", map[string]any{
		"task_id": id,
		"chunks":  total,
		"runes":   len([]rune(task.Input)),
	})

	w, err := e.area.Open(id)
	if err != nil {
		e.fail(task, total, err)
		return
	}
	defer w.Discard()

	asm := synth.NewAssembler(w)
	asm.SetPause(time.Duration(e.pause.Load()))
	done := 0
	for start := 0; start < total; start += e.cfg.ChunkParallelism {
		if e.registry.Cancelled(id) {
			e.abandon(task, total)
			return
		}
		if err := ctx.Err(); err != nil {
			e.fail(task, total, fmt.Errorf("executor stopped: %w", err))
			return
		}

		end := min(start+e.cfg.ChunkParallelism, total)
		segments, err := e.synthesizeWindow(ctx, id, start, chunks[start:end], task.Voice)
		if err != nil {
			e.fail(task, total, err)
			return
		}

		for _, seg := range segments {
			if err := asm.Add(seg); err != nil {
				e.fail(task, total, err)
				return
			}
			done++
			if !e.update(id, Update{
				State:      domain.TaskStateProcessing,
				Progress:   progressOf(done, total),
				ChunksDone: done,
			}) {
				e.abandon(task, total)
				return
			}
		}
	}

	contentType, err := asm.Finish()
	if err != nil {
		e.fail(task, total, err)
		return
	}
	handle, err := w.Finalize(contentType)
	if err != nil {
		e.fail(task, total, err)
		return
	}

	if !e.update(id, Update{State: domain.TaskStateCompleted, Artifact: &handle}) {
		// Cancelled between the last chunk and publish.
		_ = e.area.Evict(id)
		e.abandon(task, total)
		return
	}

	logger.InfoCF("executor", "Task completed", map[string]any{
		"task_id":      id,
		"bytes":        handle.Size,
		"content_type": handle.ContentType,
	})
	e.record(task, domain.TaskStateCompleted, "", total, handle.Size)
}

// synthesizeWindow converts a run of consecutive chunks concurrently and
// returns their audio in input order.
func (e *Executor) synthesizeWindow(ctx context.Context, id string, offset int, window []string, voice domain.VoiceProfile) ([]synth.Audio, error) {
	out := make([]synth.Audio, len(window))
	if len(window) == 1 {
		audio, err := e.synthesizeChunk(ctx, id, offset, window[0], voice)
		out[0] = audio
		return out, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, text := range window {
		g.Go(func() error {
			audio, err := e.synthesizeChunk(gctx, id, offset+i, text, voice)
			out[i] = audio
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// synthesizeChunk calls the engine, retrying with linear backoff.
func (e *Executor) synthesizeChunk(ctx context.Context, id string, index int, text string, voice domain.VoiceProfile) (synth.Audio, error) {
	for attempt := 0; ; attempt++ {
		audio, err := e.synth.Synthesize(ctx, index, text, voice)
		if err == nil {
			return audio, nil
		}
		if attempt >= e.cfg.ChunkRetries || ctx.Err() != nil {
			return synth.Audio{}, err
		}

		backoff := e.cfg.RetryBackoff * time.Duration(attempt+1)
		logger.WarnCF("executor", "Chunk synthesis failed, retrying", map[string]any{
			"task_id": id,
			"chunk":   index,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return synth.Audio{}, err
		case <-timer.C:
		}
	}
}

// update applies a registry change and reports whether the worker should go on.
// Rejected transitions are logged and never reach the submitter.
func (e *Executor) update(id string, u Update) bool {
	err := e.registry.Update(id, u)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		logger.WarnCF("executor", "Rejected task transition", map[string]any{
			"task_id": id,
			"state":   string(u.State),
			"error":   err.Error(),
		})
	} else {
		logger.ErrorCF("executor", "Task update failed", map[string]any{
			"task_id": id,
			"error":   err.Error(),
		})
	}
	return false
}

// abandon stops work on a task that left the worker's control. Only a
// cancellation produces an outcome; the registry already holds the state.
func (e *Executor) abandon(task domain.Task, chunks int) {
	current, err := e.registry.Task(task.ID)
	if err != nil || current.State != domain.TaskStateCancelled {
		return
	}
	logger.InfoCF("executor", "Task cancelled, discarding partial artifact", map[string]any{
		"task_id":     task.ID,
		"chunks_done": current.ChunksDone,
	})
	e.record(task, domain.TaskStateCancelled, current.Error, chunks, 0)
}

func (e *Executor) fail(task domain.Task, chunks int, cause error) {
	logger.ErrorCF("executor", "Task failed", map[string]any{
		"task_id": task.ID,
		"error":   cause.Error(),
	})
	if e.update(task.ID, Update{State: domain.TaskStateFailed, Error: cause.Error()}) {
		e.record(task, domain.TaskStateFailed, cause.Error(), chunks, 0)
	}
}

func (e *Executor) record(task domain.Task, state domain.TaskState, msg string, chunks int, size int64) {
	if e.recorder == nil {
		return
	}
	outcome := domain.Outcome{
		TaskID:     task.ID,
		State:      state,
		Error:      msg,
		Chunks:     chunks,
		Bytes:      size,
		CreatedAt:  task.CreatedAt,
		FinishedAt: time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.recorder.Record(ctx, outcome); err != nil {
		logger.WarnCF("executor", "Failed to record outcome", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
	}
}

// progressOf is round(100*done/total).
func progressOf(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
