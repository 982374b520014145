package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/synth"
)

// Target describes the environment the service is about to run in.
type Target struct {
	Engine       string
	EspeakPath   string
	KokoroURL    string
	DataDir      string
	SettingsPath string
}

// Checker validates the speech engine and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	probe      func(ctx context.Context, url string) error
}

// NewChecker builds a checker using real OS and network dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		probe:      httpProbe,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, target Target) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{c.checkEngine(ctx, target)}
	items = append(items,
		c.checkWritableDir("data_dir", "Data directory", target.DataDir),
		c.checkWritableDir("settings_dir", "Settings directory", filepath.Dir(target.SettingsPath)),
	)

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkEngine verifies the selected speech engine can be reached.
func (c *Checker) checkEngine(ctx context.Context, target Target) domain.DiagnosticItem {
	engine := strings.ToLower(strings.TrimSpace(target.Engine))
	if engine == "" {
		engine = synth.EngineEspeak
	}

	switch engine {
	case synth.EngineEspeak, "espeak-ng":
		name := target.EspeakPath
		if strings.TrimSpace(name) == "" {
			name = synth.DefaultEspeakPath
		}
		return c.checkTool(name)

	case synth.EngineKokoro:
		return c.checkKokoro(ctx, target.KokoroURL)

	case synth.EngineTone:
		return domain.DiagnosticItem{
			ID:      "engine_tone",
			Name:    "Tone generator",
			Status:  domain.DiagnosticStatusPass,
			Message: "Built-in tone generator needs no external engine.",
		}

	default:
		return domain.DiagnosticItem{
			ID:      "engine",
			Name:    "Speech engine",
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Unknown speech engine: %s", target.Engine),
			Hint:    "Set TTS_ENGINE to espeak, kokoro or tone.",
		}
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	id := "tool_" + filepath.Base(name)
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      id,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install espeak-ng and ensure the binary is available on PATH, or set TTS_ESPEAK_PATH.",
		}
	}

	return domain.DiagnosticItem{
		ID:      id,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkKokoro verifies the Kokoro server answers its voices endpoint.
func (c *Checker) checkKokoro(ctx context.Context, baseURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "engine_kokoro",
		Name: "Kokoro TTS server",
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:8880"
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/v1/audio/voices"
	if err := c.probe(probeCtx, url); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Kokoro server unreachable at %s: %v", baseURL, err)
		item.Hint = "Start the Kokoro server or point TTS_KOKORO_URL at it."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Kokoro server reachable at %s", baseURL)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" || dir == "." {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set a directory where the service can write files."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for artifacts and settings."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// httpProbe issues a GET and expects a 2xx answer.
func httpProbe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	probe func(context.Context, string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		probe:      probe,
	}
}
