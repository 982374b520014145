package config

import (
	"os"
	"path/filepath"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/chunk"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

// AppDirName is the per-user directory holding settings, artifacts and history.
const AppDirName = ".tts-converter"

// MaxPauseMs caps the silence inserted between chunks.
const MaxPauseMs = 10000

// DefaultSettings returns the synthesis defaults used before the user saves any.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		VoiceID:   "",
		Rate:      200,
		Volume:    0.9,
		ChunkSize: chunk.DefaultSize,
		PauseMs:   500,
	}
}

// AppDir returns the per-user application directory.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName)
}

// ValidateSettings rejects settings that would make every submission fail.
func ValidateSettings(s domain.Settings) error {
	if err := s.Profile().Validate(); err != nil {
		return err
	}
	if s.ChunkSize < 1 {
		return domain.InvalidParameter("chunk size must be at least 1, got %d", s.ChunkSize)
	}
	if s.PauseMs < 0 || s.PauseMs > MaxPauseMs {
		return domain.InvalidParameter("pause %dms outside [0,%d]", s.PauseMs, MaxPauseMs)
	}
	return nil
}
