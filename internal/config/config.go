// Package config loads import settings from an optional YAML file, a .env
// file and METRIGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Analysis modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// ArtifactExt is the extension of graph artifacts in the result directory.
const ArtifactExt = ".graph"

const envPrefix = "METRIGRAPH_"

var (
	// ErrMissingProjectKey is returned by Validate when no project key is set.
	ErrMissingProjectKey = errors.New("project key is required")

	// ErrInvalidMode is returned by Validate for an unknown analysis mode.
	ErrInvalidMode = errors.New("invalid analysis mode")
)

// Settings are the inputs of one import run.
type Settings struct {
	// ProjectKey identifies the project on the host and names the artifact.
	ProjectKey string `yaml:"project_key"`

	// AnalysisMode is "full" or "incremental".
	AnalysisMode string `yaml:"analysis_mode"`

	// Language selects the language metric catalog.
	Language string `yaml:"language"`

	// ResultDir holds the analyzer's graph artifacts.
	ResultDir string `yaml:"result_dir"`

	// BaseDir is the project root used to map reported paths.
	BaseDir string `yaml:"base_dir"`

	// StorePath is the directory of the result store.
	StorePath string `yaml:"store_path"`

	// MetricsFile, when set, receives run metrics in Prometheus text format.
	MetricsFile string `yaml:"metrics_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns settings with every optional field filled in.
func Default() *Settings {
	return &Settings{
		AnalysisMode: ModeFull,
		Language:     "py",
		ResultDir:    filepath.Join(".metrigraph", "results"),
		BaseDir:      ".",
		StorePath:    filepath.Join(".metrigraph", "store"),
		LogLevel:     "info",
	}
}

// Load reads settings. A .env file in the working directory is loaded first
// when present. path names an optional YAML file; "" skips it. Environment
// variables override the file, and defaults fill whatever is left empty.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	s.applyEnv()
	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyEnv() {
	override(&s.ProjectKey, "PROJECT_KEY")
	override(&s.AnalysisMode, "ANALYSIS_MODE")
	override(&s.Language, "LANGUAGE")
	override(&s.ResultDir, "RESULT_DIR")
	override(&s.BaseDir, "BASE_DIR")
	override(&s.StorePath, "STORE_PATH")
	override(&s.MetricsFile, "METRICS_FILE")
	override(&s.LogLevel, "LOG_LEVEL")
}

func override(field *string, name string) {
	if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
		*field = v
	}
}

func (s *Settings) applyDefaults() {
	d := Default()
	s.AnalysisMode = firstNonEmpty(strings.ToLower(s.AnalysisMode), d.AnalysisMode)
	s.Language = firstNonEmpty(s.Language, d.Language)
	s.ResultDir = firstNonEmpty(s.ResultDir, d.ResultDir)
	s.BaseDir = firstNonEmpty(s.BaseDir, d.BaseDir)
	s.StorePath = firstNonEmpty(s.StorePath, d.StorePath)
	s.LogLevel = firstNonEmpty(strings.ToLower(s.LogLevel), d.LogLevel)
}

// Validate checks the settings needed to start a run.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ProjectKey) == "" {
		return ErrMissingProjectKey
	}
	switch s.AnalysisMode {
	case ModeFull, ModeIncremental:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, s.AnalysisMode)
	}
	return nil
}

// Incremental reports whether the run only covers changed files.
func (s *Settings) Incremental() bool {
	return s.AnalysisMode == ModeIncremental
}

// ArtifactPath is where the analyzer writes the graph of this project.
func (s *Settings) ArtifactPath() string {
	return filepath.Join(s.ResultDir, ArtifactName(s.ProjectKey))
}

// ArtifactName is the file name of a project's graph artifact.
func ArtifactName(projectKey string) string {
	return strings.ReplaceAll(projectKey, ":", "_") + ArtifactExt
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (s *Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
