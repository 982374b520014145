package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

// Store defines persistence operations for user settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// NewStore picks the file format from the extension of path: .yaml and .yml
// use YAML, anything else JSON.
func NewStore(path string) Store {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLStore(path)
	default:
		return NewJSONStore(path)
	}
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads settings from disk or returns defaults when missing. Fields the
// file omits keep their defaults.
func (s *JSONStore) Load() (domain.Settings, error) {
	return load(s.path, json.Unmarshal)
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := ValidateSettings(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return write(s.path, data)
}

// YAMLStore persists settings as YAML.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed settings store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Load reads settings from disk or returns defaults when missing.
func (s *YAMLStore) Load() (domain.Settings, error) {
	return load(s.path, yaml.Unmarshal)
}

// Save writes settings as YAML.
func (s *YAMLStore) Save(cfg domain.Settings) error {
	if err := ValidateSettings(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return write(s.path, data)
}

func load(path string, unmarshal func([]byte, any) error) (domain.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, err
	}

	cfg := DefaultSettings()
	if err := unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultSettings().ChunkSize
	}
	return cfg, nil
}

func write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
