package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/metrigraph/internal/config"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/storage"
)

const demoProject = "org:demo"

const demoGraph = `
header:
  MetricHunter: "7.2"
nodes:
  - {id: 1, type: Component, attrs: {name: "<System>", LOC: 160}}
  - {id: 10, type: Root, attrs: {name: __LogicalRoot__, LOC: 160}}
  - {id: 11, type: Package, attrs: {name: demo, longName: demo}}
  - {id: 12, type: Class, attrs: {name: Cart, longName: demo.Cart, LOC: 120, WMC: 12, warning.WMC: "WMC is 12 (limit 10)"}}
  - {id: 20, type: Root, attrs: {name: __PhysicalRoot__}}
  - {id: 21, type: File, attrs: {name: cart.py, path: cart.py, LOC: 120}}
edges:
  - {kind: LogicalTree, from: 10, to: 11}
  - {kind: LogicalTree, from: 11, to: 12}
  - {kind: PhysicalTree, from: 20, to: 21}
`

type testProject struct {
	globals   *Globals
	baseDir   string
	resultDir string
	storePath string
	artifact  string
}

// setupProject lays out a project with sources, a settings file and an
// encoded artifact.
func setupProject(t *testing.T, projectKey string) *testProject {
	t.Helper()

	root := t.TempDir()
	p := &testProject{
		baseDir:   filepath.Join(root, "project"),
		resultDir: filepath.Join(root, "results"),
		storePath: filepath.Join(root, "store"),
	}
	p.artifact = filepath.Join(p.resultDir, config.ArtifactName(demoProject))

	require.NoError(t, os.MkdirAll(p.baseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.baseDir, "cart.py"), []byte("class Cart:\n    pass\n"), 0o644))
	require.NoError(t, os.MkdirAll(p.resultDir, 0o755))

	settingsPath := filepath.Join(root, "metrigraph.yaml")
	settings := fmt.Sprintf("project_key: %q\nresult_dir: %q\nbase_dir: %q\nstore_path: %q\n",
		projectKey, p.resultDir, p.baseDir, p.storePath)
	require.NoError(t, os.WriteFile(settingsPath, []byte(settings), 0o644))

	p.globals = &Globals{Config: settingsPath, Quiet: true}

	docPath := filepath.Join(root, "demo.yaml")
	require.NoError(t, os.WriteFile(docPath, []byte(demoGraph), 0o644))
	encode := &EncodeCmd{Input: docPath, Output: p.artifact, Zstd: true}
	require.NoError(t, encode.Run(p.globals))

	return p
}

func openTestStore(t *testing.T, path string) *storage.BadgerBackend {
	t.Helper()
	store := storage.NewBadgerBackend()
	require.NoError(t, store.Initialize(path, true))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEncodeAndInspect(t *testing.T) {
	t.Parallel()

	p := setupProject(t, demoProject)

	t.Run("Inspect", func(t *testing.T) {
		cmd := &InspectCmd{Artifact: p.artifact}
		assert.NoError(t, cmd.Run(p.globals))
	})

	t.Run("InspectGarbage", func(t *testing.T) {
		garbage := filepath.Join(t.TempDir(), "garbage.graph")
		require.NoError(t, os.WriteFile(garbage, []byte("not a graph"), 0o644))

		cmd := &InspectCmd{Artifact: garbage}
		assert.Error(t, cmd.Run(p.globals))
	})

	t.Run("EncodeInvalidDocument", func(t *testing.T) {
		doc := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(doc, []byte("nodes: [{id: 1}]"), 0o644))

		cmd := &EncodeCmd{Input: doc, Output: filepath.Join(t.TempDir(), "out.graph")}
		assert.Error(t, cmd.Run(p.globals))
	})
}

func TestImportCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("ImportAndQuery", func(t *testing.T) {
		p := setupProject(t, demoProject)

		cmd := &ImportCmd{}
		require.NoError(t, cmd.Run(p.globals))

		assert.NoError(t, (&QueryCmd{Query: "cart", Limit: 5}).Run(p.globals))
		assert.NoError(t, (&MeasuresCmd{Resource: resource.LogicalKey(demoProject, resource.QualifierClass, "demo.Cart")}).Run(p.globals))
		assert.NoError(t, (&StatusCmd{}).Run(p.globals))

		store := openTestStore(t, p.storePath)
		ctx := context.Background()

		cart, err := store.Resource(ctx, resource.ViewLogical, resource.LogicalKey(demoProject, resource.QualifierClass, "demo.Cart"))
		require.NoError(t, err)
		require.NotNil(t, cart)

		findings, err := store.Findings(ctx, cart.Key)
		require.NoError(t, err)
		assert.Len(t, findings, 1)

		file, err := store.Resource(ctx, resource.ViewPhysical, resource.PhysicalKey(demoProject, "cart.py"))
		require.NoError(t, err)
		assert.NotNil(t, file)

		run, err := store.LastRun(ctx)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, demoProject, run.Project)
		assert.Contains(t, run.Skipped, string(resource.ViewClone))
		assert.Empty(t, run.Failed)
	})

	t.Run("ProjectFlagOverride", func(t *testing.T) {
		p := setupProject(t, "org:other")

		cmd := &ImportCmd{ProjectFlags: ProjectFlags{Project: demoProject}}
		assert.NoError(t, cmd.Run(p.globals))
	})

	t.Run("MissingProjectKey", func(t *testing.T) {
		p := setupProject(t, "")

		cmd := &ImportCmd{}
		err := cmd.Run(p.globals)
		assert.ErrorIs(t, err, config.ErrMissingProjectKey)
	})

	t.Run("InvalidMode", func(t *testing.T) {
		p := setupProject(t, demoProject)

		cmd := &ImportCmd{ProjectFlags: ProjectFlags{Mode: "partial"}}
		err := cmd.Run(p.globals)
		assert.ErrorIs(t, err, config.ErrInvalidMode)
	})

	t.Run("MissingArtifact", func(t *testing.T) {
		p := setupProject(t, demoProject)
		require.NoError(t, os.Remove(p.artifact))

		cmd := &ImportCmd{}
		err := cmd.Run(p.globals)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestQueryCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("QueryWithNoStore", func(t *testing.T) {
		p := setupProject(t, demoProject)

		cmd := &QueryCmd{
			Query: "test",
			Limit: 10,
		}

		err := cmd.Run(p.globals)
		assert.Error(t, err) // Should error because nothing was imported
	})
}

func TestStatusCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("StatusWithNoStore", func(t *testing.T) {
		p := setupProject(t, demoProject)

		err := (&StatusCmd{}).Run(p.globals)
		assert.Error(t, err)
	})
}

func TestMetricsCmd_Run(t *testing.T) {
	t.Parallel()

	p := setupProject(t, demoProject)

	assert.NoError(t, (&MetricsCmd{}).Run(p.globals))
	assert.NoError(t, (&MetricsCmd{Domain: "Size"}).Run(p.globals))
	assert.Error(t, (&MetricsCmd{Language: "cobol"}).Run(p.globals))
}

func TestCleanCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("CleanWithNoStore", func(t *testing.T) {
		p := setupProject(t, demoProject)

		cmd := &CleanCmd{
			Force: true,
		}

		err := cmd.Run(p.globals)
		assert.Error(t, err) // Should error because no store exists
	})

	t.Run("CleanWithStore", func(t *testing.T) {
		p := setupProject(t, demoProject)
		require.NoError(t, (&ImportCmd{}).Run(p.globals))

		cmd := &CleanCmd{
			Force: true,
		}

		err := cmd.Run(p.globals)
		assert.NoError(t, err)

		_, err = os.Stat(p.storePath)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestSetupCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("SetupClaudeLocal", func(t *testing.T) {
		dir := t.TempDir()

		cmd := &SetupCmd{Claude: true, Dir: dir}
		require.NoError(t, cmd.Run(&Globals{Config: "/etc/metrigraph.yaml"}))

		data, err := os.ReadFile(filepath.Join(dir, ".claude", "mcp.json"))
		require.NoError(t, err)

		var cfg map[string]any
		require.NoError(t, json.Unmarshal(data, &cfg))

		server := cfg["mcpServers"].(map[string]any)["metrigraph"].(map[string]any)
		assert.Equal(t, "metrigraph", server["command"])
		assert.Equal(t, []any{"--config", "/etc/metrigraph.yaml", "serve", "--watch"}, server["args"])
	})

	t.Run("SetupCursorAndClaude", func(t *testing.T) {
		dir := t.TempDir()

		cmd := &SetupCmd{Claude: true, Cursor: true, Dir: dir}
		require.NoError(t, cmd.Run(&Globals{}))

		for _, client := range []string{".claude", ".cursor"} {
			_, err := os.Stat(filepath.Join(dir, client, "mcp.json"))
			assert.NoError(t, err, client)
		}
	})

	t.Run("PrintWithoutClient", func(t *testing.T) {
		cmd := &SetupCmd{Dir: t.TempDir()}
		assert.NoError(t, cmd.Run(&Globals{}))
	})
}

func TestCLI_Execute(t *testing.T) {
	t.Parallel()

	t.Run("ImportThenStatus", func(t *testing.T) {
		p := setupProject(t, demoProject)

		require.NoError(t, NewCLI().Execute([]string{"--config", p.globals.Config, "-q", "import"}))
		assert.NoError(t, NewCLI().Execute([]string{"--config", p.globals.Config, "status"}))
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		err := NewCLI().Execute([]string{"frobnicate"})
		assert.Error(t, err)
	})
}

func TestGenerateMCPConfig(t *testing.T) {
	t.Parallel()

	cfg := generateMCPConfig("")
	server := cfg["mcpServers"].(map[string]any)["metrigraph"].(map[string]any)
	assert.Equal(t, []string{"serve", "--watch"}, server["args"])
}
