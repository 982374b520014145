package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/config"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/service"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/tasks"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// taskEventName is the runtime event the frontend listens to.
const taskEventName = "task:event"

var documentDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Documents",
		Pattern:     "*.txt;*.pdf;*.docx;*.pptx",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App binds the conversion service to the desktop window.
type App struct {
	svc         *service.Service
	assets      fs.FS
	diagnostics domain.DiagnosticReport

	// emit pushes one runtime event; replaced in tests.
	emit func(ctx context.Context, name string, data ...any)

	mu           sync.Mutex
	runtimeCtx   context.Context
	stopForward  func()
	forwardDone  chan struct{}
	lastSavedDir string
}

// New builds the application from the environment configuration.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	cfg, err := config.LoadRuntime()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.Configure(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	svc, err := service.New(cfg, service.Options{})
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}
	return NewWithService(svc, assets), nil
}

// NewWithService wraps an already built service.
func NewWithService(svc *service.Service, assets fs.FS) *App {
	return &App{
		svc:         svc,
		assets:      assets,
		diagnostics: svc.Diagnostics(context.Background()),
		emit:        wailsruntime.EventsEmit,
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Document Text-to-Speech",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context, starts the workers and forwards
// task events to the window.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx

	a.svc.Start(context.Background())

	events, stop := a.svc.Events().Subscribe(256)
	done := make(chan struct{})
	a.stopForward = stop
	a.forwardDone = done
	go a.forwardEvents(ctx, events, done)
}

// Shutdown stops forwarding events and drains the workers.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	stop, done := a.stopForward, a.forwardDone
	a.stopForward, a.forwardDone = nil, nil
	a.runtimeCtx = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.svc.Close(closeCtx); err != nil {
		logger.WarnCF("app", "Shutdown did not finish cleanly", map[string]any{"error": err.Error()})
	}
}

func (a *App) forwardEvents(ctx context.Context, events <-chan tasks.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		a.emit(ctx, taskEventName, ev)
	}
}

// SubmitText queues text for conversion. Unset voice fields use the saved
// settings.
func (a *App) SubmitText(req service.SpeakRequest) (domain.TaskStatus, error) {
	id, err := a.svc.Speak(context.Background(), req)
	if err != nil {
		return domain.TaskStatus{}, err
	}
	return a.svc.Status(id)
}

// ExtractDocument returns the text of a local document.
func (a *App) ExtractDocument(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", domain.InvalidParameter("document path is empty")
	}
	return a.svc.ExtractFile(context.Background(), path)
}

// ExtractURL returns the readable text of a web page.
func (a *App) ExtractURL(rawURL string) (string, error) {
	return a.svc.ExtractURL(context.Background(), strings.TrimSpace(rawURL))
}

// TaskStatus answers a status poll.
func (a *App) TaskStatus(id string) (domain.TaskStatus, error) {
	return a.svc.Status(id)
}

// Tasks lists live tasks, oldest first.
func (a *App) Tasks() []domain.TaskStatus {
	list := a.svc.List()
	out := make([]domain.TaskStatus, 0, len(list))
	for _, task := range list {
		out = append(out, task.Status())
	}
	return out
}

// CancelTask stops a pending or processing task.
func (a *App) CancelTask(id string) error {
	return a.svc.Cancel(id)
}

// TaskEvents returns all events with sequence greater than sinceSeq.
func (a *App) TaskEvents(sinceSeq int64) []tasks.Event {
	return a.svc.Events().Since(sinceSeq)
}

// History lists recent finished conversions.
func (a *App) History(limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	return a.svc.History(context.Background(), limit)
}

// Voices lists the voices of the configured engine.
func (a *App) Voices() ([]domain.Voice, error) {
	return a.svc.Voices(context.Background())
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// RefreshDiagnostics reruns dependency checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.svc.Diagnostics(context.Background())
	a.mu.Lock()
	a.diagnostics = report
	a.mu.Unlock()
	return report
}

// GetSettings returns the persisted settings.
func (a *App) GetSettings() domain.Settings {
	return a.svc.Settings()
}

// SaveSettings validates and persists settings.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	settings.VoiceID = strings.TrimSpace(settings.VoiceID)
	return a.svc.SaveSettings(settings)
}

// PickDocument opens a native file dialog for document selection.
func (a *App) PickDocument() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select document",
		Filters: documentDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// SaveArtifact asks for a destination and copies the task audio there. An
// empty path means the dialog was dismissed.
func (a *App) SaveArtifact(id string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	task, err := a.svc.Task(id)
	if err != nil {
		return "", err
	}
	if task.State != domain.TaskStateCompleted {
		return "", fmt.Errorf("%w: task is %s", domain.ErrNotReady, task.State)
	}

	a.mu.Lock()
	dir := a.lastSavedDir
	a.mu.Unlock()

	name := "speech" + filepath.Ext(task.ArtifactPath)
	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save audio",
		DefaultDirectory: dir,
		DefaultFilename:  name,
	})
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	return path, a.exportTo(id, path)
}

func (a *App) exportTo(id, path string) error {
	if err := a.svc.ExportArtifact(id, path); err != nil {
		return err
	}
	a.mu.Lock()
	a.lastSavedDir = filepath.Dir(path)
	a.mu.Unlock()
	return nil
}

// OpenOutputFolder opens the given path (or the last save location) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.lastSavedDir
		a.mu.Unlock()
	}
	if target == "" {
		return errors.New("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
