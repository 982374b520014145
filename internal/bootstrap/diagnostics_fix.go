package bootstrap

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/config"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
)

// InstallOrFixDiagnostic remediates one failed check and returns the fresh
// report.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	logger.InfoCF("app", "Fixing diagnostic item", map[string]any{"item": itemID})

	report, err := a.svc.FixDiagnostic(context.Background(), itemID)
	if err != nil {
		logger.WarnCF("app", "Diagnostic fix failed", map[string]any{
			"item":  itemID,
			"error": err.Error(),
		})
		return a.RefreshDiagnostics(), err
	}

	a.mu.Lock()
	a.diagnostics = report
	a.mu.Unlock()
	return report, nil
}

// ensureLocalBinOnPATH prepends the application's private bin directory so
// tools installed there are found by the engine and the checks.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, config.AppDirName, "bin")
}
