package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrigraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("METRIGRAPH_PROJECT_KEY", "")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeFull, s.AnalysisMode)
	assert.Equal(t, "py", s.Language)
	assert.Equal(t, ".", s.BaseDir)
	assert.Equal(t, filepath.Join(".metrigraph", "store"), s.StorePath)
	assert.ErrorIs(t, s.Validate(), ErrMissingProjectKey)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeSettings(t, `
project_key: org:shop
analysis_mode: Incremental
result_dir: /tmp/results
log_level: debug
`)
	t.Setenv("METRIGRAPH_RESULT_DIR", "/var/results")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "org:shop", s.ProjectKey)
	assert.True(t, s.Incremental())
	assert.Equal(t, "/var/results", s.ResultDir)
	assert.Equal(t, slog.LevelDebug, s.SlogLevel())
	assert.NoError(t, s.Validate())
	assert.Equal(t, filepath.Join("/var/results", "org_shop.graph"), s.ArtifactPath())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("BadYAML", func(t *testing.T) {
		_, err := Load(writeSettings(t, "project_key: [unterminated"))
		assert.Error(t, err)
	})
}

func TestValidate_Mode(t *testing.T) {
	t.Parallel()

	s := Default()
	s.ProjectKey = "p"
	s.AnalysisMode = "partial"
	assert.ErrorIs(t, s.Validate(), ErrInvalidMode)
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c.graph", ArtifactName("a:b:c"))
	assert.Equal(t, "plain.graph", ArtifactName("plain"))
}
