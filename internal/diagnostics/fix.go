package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"
)

const installCommandTimeout = 15 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// Fixer applies OS-specific remediations for failed diagnostic items.
type Fixer struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
	mkdirAll func(string, os.FileMode) error
}

// NewFixer builds a fixer using the real package managers of this OS.
func NewFixer() *Fixer {
	return &Fixer{
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
		mkdirAll: os.MkdirAll,
	}
}

// Fix remediates one diagnostic item.
func (f *Fixer) Fix(ctx context.Context, itemID string, target Target) error {
	id := strings.TrimSpace(itemID)
	switch {
	case id == "":
		return fmt.Errorf("diagnostic item id is required")
	case strings.HasPrefix(id, "tool_espeak"):
		return f.installEspeak(ctx)
	case id == "data_dir":
		return f.createDir(target.DataDir)
	case id == "settings_dir":
		return f.createDir(filepath.Dir(target.SettingsPath))
	default:
		return fmt.Errorf("unsupported diagnostic item id: %s", id)
	}
}

func (f *Fixer) createDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return fmt.Errorf("directory is not configured")
	}
	if err := f.mkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func (f *Fixer) installEspeak(ctx context.Context) error {
	if f.commandAvailable("espeak-ng") {
		return nil
	}
	if err := f.runFirstSuccessfulInstall(ctx, espeakInstallOptions(f.goos)); err != nil {
		return fmt.Errorf("install espeak-ng: %w", err)
	}
	if !f.commandAvailable("espeak-ng") {
		return fmt.Errorf("verify espeak-ng on PATH: not found after install")
	}
	return nil
}

// espeakInstallOptions lists package manager recipes in order of preference.
func espeakInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "eSpeak-NG.eSpeak-NG", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "espeak-ng", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "espeak-ng"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "espeak-ng"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "espeak-ng"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "espeak-ng"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "espeak-ng"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "espeak-ng"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "espeak-ng"}}},
		}
	}
}

func (f *Fixer) runFirstSuccessfulInstall(ctx context.Context, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", f.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !f.commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := f.runInstallCommands(ctx, option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", f.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (f *Fixer) runInstallCommands(ctx context.Context, commands [][]string) error {
	for _, command := range commands {
		if err := f.runWithPossibleElevation(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

// runWithPossibleElevation retries system package managers through pkexec or
// non-interactive sudo on Linux.
func (f *Fixer) runWithPossibleElevation(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if f.goos == "linux" && requiresElevation(command[0]) {
		if f.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if f.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := f.run(ctx, candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}
	return errors.New(strings.Join(attemptErrors, " | "))
}

func (f *Fixer) commandAvailable(name string) bool {
	_, err := f.lookPath(name)
	return err == nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}
