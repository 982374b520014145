// Package service assembles the conversion pipeline from runtime configuration
// and exposes the operations shared by the HTTP API, the CLI and the desktop app.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/config"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/diagnostics"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/extract"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/history"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/storage"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/synth"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/tasks"
)

// historyRetention bounds how long journaled outcomes are kept.
const historyRetention = 30 * 24 * time.Hour

// Options overrides individual collaborators, mostly for tests.
type Options struct {
	Engine    synth.Synthesizer
	Store     config.Store
	Extractor extract.Extractor
	Checker   *diagnostics.Checker
	Fixer     *diagnostics.Fixer
}

// Service owns every long-lived component of one conversion process.
type Service struct {
	cfg config.Runtime

	store     config.Store
	area      *storage.Area
	registry  *tasks.Registry
	executor  *tasks.Executor
	reaper    *tasks.Reaper
	engine    synth.Synthesizer
	extractor extract.Extractor
	journal   *history.Journal
	checker   *diagnostics.Checker
	fixer     *diagnostics.Fixer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the service described by cfg.
func New(cfg config.Runtime, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		store:     opts.Store,
		engine:    opts.Engine,
		extractor: opts.Extractor,
		checker:   opts.Checker,
		fixer:     opts.Fixer,
	}
	if s.store == nil {
		s.store = config.NewStore(cfg.SettingsPath)
	}
	if s.extractor == nil {
		s.extractor = extract.NewReader(cfg.FetchTimeout)
	}
	if s.checker == nil {
		s.checker = diagnostics.NewChecker()
	}
	if s.fixer == nil {
		s.fixer = diagnostics.NewFixer()
	}
	if s.engine == nil {
		engine, err := synth.New(synth.Options{
			Engine:      cfg.Engine,
			EspeakPath:  cfg.EspeakPath,
			KokoroURL:   cfg.KokoroURL,
			KokoroModel: cfg.KokoroModel,
			HTTPTimeout: cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, err
		}
		s.engine = engine
	}

	area, err := storage.NewArea(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	s.area = area

	var recorder tasks.Recorder
	if cfg.HistoryEnabled() {
		journal, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		s.journal = journal
		recorder = journal
	}

	settings, err := s.store.Load()
	if err != nil {
		logger.WarnCF("service", "Failed to load settings, using defaults", map[string]any{
			"path":  cfg.SettingsPath,
			"error": err.Error(),
		})
		settings = config.DefaultSettings()
	}

	s.registry = tasks.NewRegistry(tasks.NewEventBus(500))
	s.executor = tasks.NewExecutor(tasks.ExecutorConfig{
		Workers:          cfg.Workers,
		QueueDepth:       cfg.QueueDepth,
		ChunkSize:        settings.ChunkSize,
		ChunkParallelism: cfg.ChunkParallelism,
		ChunkRetries:     cfg.ChunkRetries,
		Pause:            time.Duration(settings.PauseMs) * time.Millisecond,
	}, s.registry, synth.NewAdapter(s.engine, cfg.ChunkTimeout), area, recorder)
	s.reaper = tasks.NewReaper(s.registry, area, cfg.Retention, cfg.ReapInterval)

	return s, nil
}

// Config returns the runtime configuration the service was built from.
func (s *Service) Config() config.Runtime {
	return s.cfg
}

// Events returns the task event bus.
func (s *Service) Events() *tasks.EventBus {
	return s.registry.Events()
}

// Start launches the workers and the reaper.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.executor.Start(runCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reaper.Run(runCtx)
	}()

	if s.journal != nil {
		if n, err := s.journal.Prune(ctx, time.Now().Add(-historyRetention)); err != nil {
			logger.WarnCF("service", "Failed to prune history", map[string]any{"error": err.Error()})
		} else if n > 0 {
			logger.InfoCF("service", "Pruned history", map[string]any{"outcomes": n})
		}
	}

	logger.InfoCF("service", "Service started", map[string]any{
		"engine":   s.cfg.Engine,
		"data_dir": s.cfg.DataDir,
		"history":  s.cfg.HistoryEnabled(),
	})
}

// Close drains the executor, stops the reaper and closes the journal. When
// ctx expires first, running tasks are cancelled.
func (s *Service) Close(ctx context.Context) error {
	stopErr := s.executor.Stop(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()

	var closeErr error
	if s.journal != nil {
		closeErr = s.journal.Close()
	}
	return errors.Join(stopErr, closeErr)
}

// SpeakRequest submits text. Nil voice fields come from the saved settings.
type SpeakRequest struct {
	Text    string   `json:"text"`
	VoiceID *string  `json:"voice_id,omitempty"`
	Rate    *int     `json:"rate,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
}

// Voice resolves the profile for req against the saved settings.
func (s *Service) Voice(req SpeakRequest) domain.VoiceProfile {
	voice := s.Settings().Profile()
	if req.VoiceID != nil {
		voice.VoiceID = strings.TrimSpace(*req.VoiceID)
	}
	if req.Rate != nil {
		voice.Rate = *req.Rate
	}
	if req.Volume != nil {
		voice.Volume = *req.Volume
	}
	return voice
}

// Speak creates a conversion task and returns its id.
func (s *Service) Speak(ctx context.Context, req SpeakRequest) (string, error) {
	return s.registry.Submit(ctx, req.Text, s.Voice(req))
}

// ExtractFile reads the text of a document already on disk.
func (s *Service) ExtractFile(ctx context.Context, path string) (string, error) {
	return s.extractor.ExtractFile(ctx, path)
}

// ExtractUpload stores an uploaded document, extracts its text and deletes
// the upload. Uploads above the configured limit fail with ErrPayloadTooLarge.
func (s *Service) ExtractUpload(ctx context.Context, name string, r io.Reader) (string, error) {
	if _, err := extract.Format(name); err != nil {
		return "", err
	}

	limited := &io.LimitedReader{R: r, N: s.cfg.MaxUploadBytes + 1}
	path, err := s.area.SaveUpload(name, limited)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := s.area.RemoveUpload(path); err != nil {
			logger.WarnCF("service", "Failed to remove upload", map[string]any{"path": path, "error": err.Error()})
		}
	}()

	if limited.N <= 0 {
		return "", fmt.Errorf("%w: limit is %d bytes", domain.ErrPayloadTooLarge, s.cfg.MaxUploadBytes)
	}
	return s.extractor.ExtractFile(ctx, path)
}

// ExtractURL fetches a web page or text resource and returns its readable text.
func (s *Service) ExtractURL(ctx context.Context, rawURL string) (string, error) {
	return s.extractor.ExtractURL(ctx, rawURL)
}

// Status answers a status poll.
func (s *Service) Status(id string) (domain.TaskStatus, error) {
	return s.registry.Status(id)
}

// Task returns the full task record.
func (s *Service) Task(id string) (domain.Task, error) {
	return s.registry.Task(id)
}

// List returns every live task, oldest first.
func (s *Service) List() []domain.Task {
	return s.registry.List()
}

// Cancel stops a pending or processing task.
func (s *Service) Cancel(id string) error {
	return s.registry.Cancel(id)
}

// Evict drops a finished task and its artifact before retention expires.
func (s *Service) Evict(id string) error {
	return s.reaper.Evict(id)
}

// OpenArtifact opens the audio of a completed task. The caller closes it.
func (s *Service) OpenArtifact(id string) (*storage.Reader, error) {
	if _, err := s.registry.Artifact(id); err != nil {
		return nil, err
	}
	return s.area.Acquire(id)
}

// ExportArtifact copies the audio of a completed task to dst.
func (s *Service) ExportArtifact(id, dst string) (err error) {
	r, err := s.OpenArtifact(id)
	if err != nil {
		return err
	}
	defer r.Close()

	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

// Wait blocks until the task reaches a terminal state or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (domain.TaskStatus, error) {
	events, stop := s.registry.Events().Subscribe(64)
	defer stop()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		st, err := s.registry.Status(id)
		if err != nil {
			return domain.TaskStatus{}, err
		}
		if st.State.Terminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-events:
		case <-ticker.C:
		}
	}
}

// Voices lists the voices offered by the engine.
func (s *Service) Voices(ctx context.Context) ([]domain.Voice, error) {
	return s.engine.Voices(ctx)
}

// Settings returns the saved settings, or defaults when they cannot be read.
func (s *Service) Settings() domain.Settings {
	settings, err := s.store.Load()
	if err != nil {
		logger.WarnCF("service", "Failed to load settings", map[string]any{"error": err.Error()})
		return config.DefaultSettings()
	}
	return settings
}

// SaveSettings validates and persists settings. A new chunk size or pause
// applies to tasks picked up afterwards.
func (s *Service) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	if settings.ChunkSize <= 0 {
		settings.ChunkSize = config.DefaultSettings().ChunkSize
	}
	if err := s.store.Save(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.executor.SetChunkSize(settings.ChunkSize)
	s.executor.SetPause(time.Duration(settings.PauseMs) * time.Millisecond)
	return settings, nil
}

// History lists the most recent terminal outcomes. It is empty when the
// journal is disabled.
func (s *Service) History(ctx context.Context, limit int) ([]domain.Outcome, error) {
	if s.journal == nil {
		return []domain.Outcome{}, nil
	}
	return s.journal.Recent(ctx, limit)
}

// Diagnostics checks the engine and the writable directories.
func (s *Service) Diagnostics(ctx context.Context) domain.DiagnosticReport {
	return s.checker.Run(ctx, s.target())
}

// FixDiagnostic remediates one diagnostic item and re-runs the checks.
func (s *Service) FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error) {
	if err := s.fixer.Fix(ctx, itemID, s.target()); err != nil {
		return domain.DiagnosticReport{}, err
	}
	return s.Diagnostics(ctx), nil
}

func (s *Service) target() diagnostics.Target {
	return diagnostics.Target{
		Engine:       s.cfg.Engine,
		EspeakPath:   s.cfg.EspeakPath,
		KokoroURL:    s.cfg.KokoroURL,
		DataDir:      s.cfg.DataDir,
		SettingsPath: s.cfg.SettingsPath,
	}
}
