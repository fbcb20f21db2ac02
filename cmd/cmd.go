// Package cmd provides CLI command implementations for metrigraph.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/metrigraph/internal/config"
	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/graphbin"
	"github.com/Benny93/metrigraph/internal/graphdoc"
	"github.com/Benny93/metrigraph/internal/metrics"
	"github.com/Benny93/metrigraph/internal/pipeline"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/storage"
	"github.com/Benny93/metrigraph/internal/traversal"
	"github.com/Benny93/metrigraph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Globals are the flags shared by every command.
type Globals struct {
	Config  string `short:"c" type:"path" env:"METRIGRAPH_CONFIG" help:"Settings file (YAML)"`
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
}

// ProjectFlags override the project settings of a run.
type ProjectFlags struct {
	Project   string `short:"p" help:"Project key"`
	Mode      string `help:"Analysis mode (full|incremental)"`
	BaseDir   string `type:"path" help:"Project root the analyzer reported paths against"`
	ResultDir string `type:"path" help:"Directory holding the analyzer's graph artifacts"`
}

func (f ProjectFlags) apply(s *config.Settings) {
	if f.Project != "" {
		s.ProjectKey = f.Project
	}
	if f.Mode != "" {
		s.AnalysisMode = strings.ToLower(f.Mode)
	}
	if f.BaseDir != "" {
		s.BaseDir = f.BaseDir
	}
	if f.ResultDir != "" {
		s.ResultDir = f.ResultDir
	}
}

// ImportCmd imports the analyzer's graph artifact into the result store.
type ImportCmd struct {
	ProjectFlags
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	settings, err := g.settings()
	if err != nil {
		return err
	}
	c.apply(settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(settings, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if !g.Quiet {
		color.Green("Importing %s", settings.ArtifactPath())
	}

	var progress pipeline.ProgressCallback
	if !g.Quiet {
		progress = func(view resource.View, visited int) {
			fmt.Printf("\r\033[K%s: %d nodes", view, visited)
		}
	}

	report, err := pipeline.Run(ctx, pipeline.Options{
		Settings:      settings,
		Sink:          store,
		BeforePublish: store.Clear,
		Progress:      progress,
		Logger:        g.logger(settings),
	})
	if progress != nil {
		fmt.Println() // Newline after progress
	}
	if err != nil {
		return fmt.Errorf("running import: %w", err)
	}

	if err := store.SaveRun(ctx, report.RunInfo(time.Now().UTC())); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if !g.Quiet {
		printReport(report)
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d view(s) failed: %s", len(failed), joinViews(failed))
	}
	return nil
}

// InspectCmd describes a graph artifact without importing it.
type InspectCmd struct {
	Artifact string `arg:"" type:"existingfile" help:"Graph artifact"`
}

// Run executes the inspect command.
func (c *InspectCmd) Run(g *Globals) error {
	gr, err := graphbin.LoadFile(c.Artifact)
	if err != nil {
		return err
	}
	defer gr.Release()

	fmt.Printf("Artifact %s\n", c.Artifact)
	fmt.Printf("  Nodes:  %d\n", gr.NodeCount())
	fmt.Printf("  Edges:  %d\n", gr.EdgeCount())

	header := gr.Header()
	if len(header) > 0 {
		fmt.Println("\nHeader:")
		for _, k := range sortedKeys(header) {
			fmt.Printf("  %s = %s\n", k, header[k])
		}
	}

	fmt.Println("\nViews:")
	for _, kind := range viewKinds {
		root := traversal.FindViewRoot(gr, kind)
		if root == nil {
			color.Yellow("  %-14s no root", kind)
			continue
		}
		fmt.Printf("  %-14s root %d, %d edges, %d reachable nodes\n",
			kind, root.ID, gr.CountEdgesByKind(kind), traversal.CountReachable(gr, root, kind))
	}

	if unknown := gr.CountNodesByType(graph.NodeTypeUnknown); unknown > 0 {
		color.Yellow("\n%d node(s) of unknown type", unknown)
	}
	return nil
}

var viewKinds = []graph.EdgeKind{
	graph.EdgeKindComponentTree,
	graph.EdgeKindLogicalTree,
	graph.EdgeKindPhysicalTree,
	graph.EdgeKindCloneTree,
}

// EncodeCmd converts a YAML graph document into a binary artifact.
type EncodeCmd struct {
	Input  string `arg:"" type:"existingfile" help:"YAML graph document"`
	Output string `arg:"" type:"path" help:"Artifact to write"`
	Zstd   bool   `help:"Compress the artifact"`
}

// Run executes the encode command.
func (c *EncodeCmd) Run(g *Globals) error {
	gr, err := graphdoc.LoadFile(c.Input)
	if err != nil {
		return err
	}
	defer gr.Release()

	if err := graphbin.WriteFile(c.Output, gr, graphbin.EncodeOptions{Compress: c.Zstd}); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}

	if !g.Quiet {
		color.Green("✓ Wrote %s (%d nodes, %d edges)", c.Output, gr.NodeCount(), gr.EdgeCount())
	}
	return nil
}

// MetricsCmd lists the metric catalog.
type MetricsCmd struct {
	Language string `short:"l" help:"Language catalog (defaults to the configured language)"`
	Domain   string `short:"d" help:"Only show metrics of this domain"`
}

// Run executes the metrics command.
func (c *MetricsCmd) Run(g *Globals) error {
	settings, err := g.settings()
	if err != nil {
		return err
	}
	lang := c.Language
	if lang == "" {
		lang = settings.Language
	}

	registry, err := loadRegistry(lang)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range registry.All() {
		if c.Domain != "" && !strings.EqualFold(m.Domain, c.Domain) {
			continue
		}
		fmt.Printf("%5d  %-22s %-12s %-8s %s\n", m.ID, m.Key, m.Domain, m.Type, m.Name)
		count++
	}
	if count == 0 {
		fmt.Println("No metrics found")
	}
	return nil
}

// QueryCmd searches the imported resources.
type QueryCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the query command.
func (c *QueryCmd) Run(g *Globals) error {
	ctx := context.Background()
	settings, err := g.settings()
	if err != nil {
		return err
	}

	store, err := openStore(settings, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.Search(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("\n%d. %s (%s, %s)\n", i+1, r.Name, r.Qualifier, r.View)
		fmt.Printf("   Key: %s\n", r.Key)
		if r.Path != "" {
			fmt.Printf("   File: %s\n", r.Path)
		}
		fmt.Printf("   Score: %.3f\n", r.Score)
	}

	return nil
}

// MeasuresCmd shows the measures and findings of one resource.
type MeasuresCmd struct {
	Resource string `arg:"" help:"Resource key"`
}

// Run executes the measures command.
func (c *MeasuresCmd) Run(g *Globals) error {
	ctx := context.Background()
	settings, err := g.settings()
	if err != nil {
		return err
	}

	store, err := openStore(settings, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	registry, err := loadRegistry(settings.Language)
	if err != nil {
		return err
	}

	measures, err := store.Measures(ctx, c.Resource)
	if err != nil {
		return fmt.Errorf("loading measures: %w", err)
	}
	findings, err := store.Findings(ctx, c.Resource)
	if err != nil {
		return fmt.Errorf("loading findings: %w", err)
	}

	if len(measures) == 0 && len(findings) == 0 {
		fmt.Printf("Nothing recorded for %s\n", c.Resource)
		return nil
	}

	fmt.Printf("Measures of %s\n", c.Resource)
	for _, m := range measures {
		name := ""
		if def, ok := registry.ByKey(m.MetricKey); ok {
			name = def.Name
		}
		value := m.Data
		if value == "" {
			value = fmt.Sprintf("%g", m.Value)
		}
		fmt.Printf("  %-22s %-32s %s\n", m.MetricKey, name, value)
	}

	if len(findings) > 0 {
		color.Yellow("\nFindings (%d)", len(findings))
		for _, f := range findings {
			fmt.Printf("  %s: %s\n", f.Rule, f.Message)
		}
	}
	return nil
}

// ServeCmd starts the MCP server with optional watch mode.
type ServeCmd struct {
	Watch bool `short:"w" help:"Re-import whenever the artifact changes"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	settings, err := g.settings()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	registry, err := loadRegistry(settings.Language)
	if err != nil {
		return err
	}

	// Watch mode re-imports into the open store.
	store, err := openStore(settings, !c.Watch)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server := mcp.NewServer(store, registry)

	// stdout carries JSON-RPC only.
	logger := g.logger(settings)
	if c.Watch {
		if err := settings.Validate(); err != nil {
			return err
		}

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			err := pipeline.Watch(watchCtx, pipeline.WatchOptions{
				Options:    importOptions(settings, store, registry, logger),
				RunOnStart: true,
				OnRun:      recordRun(watchCtx, store, logger),
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watch stopped", slog.Any("error", err))
			}
		}()

		logger.Info("starting MCP server with watch mode")
	} else {
		logger.Info("starting MCP server")
	}

	return server.Run(ctx, os.Stdin, os.Stdout)
}

// WatchCmd re-imports the artifact whenever the analyzer rewrites it.
type WatchCmd struct {
	ProjectFlags
	Debounce time.Duration `default:"2s" help:"Quiet period after the last artifact write"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	settings, err := g.settings()
	if err != nil {
		return err
	}
	c.apply(settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	registry, err := loadRegistry(settings.Language)
	if err != nil {
		return err
	}

	store, err := openStore(settings, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	logger := g.logger(settings)
	record := recordRun(ctx, store, logger)

	fmt.Println("## Watch Mode")
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n\n", settings.ArtifactPath())

	err = pipeline.Watch(ctx, pipeline.WatchOptions{
		Options:    importOptions(settings, store, registry, logger),
		Debounce:   c.Debounce,
		RunOnStart: true,
		OnRun: func(report *pipeline.Report, err error) {
			record(report, err)
			if report != nil && !g.Quiet {
				printReport(report)
			}
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Println("Watch mode stopped.")
	return nil
}

// StatusCmd shows what the store holds.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	ctx := context.Background()
	settings, err := g.settings()
	if err != nil {
		return err
	}

	store, err := openStore(settings, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("counting results: %w", err)
	}
	run, err := store.LastRun(ctx)
	if err != nil {
		return fmt.Errorf("loading last run: %w", err)
	}

	fmt.Printf("Result store %s\n", settings.StorePath)
	if run != nil {
		fmt.Printf("  Project:        %s\n", run.Project)
		fmt.Printf("  Last import:    %s (%s)\n", run.Finished.Format(time.RFC3339), run.Duration.Round(time.Millisecond))
	}
	fmt.Printf("  Resources:      %d\n", stats.Resources)
	for _, view := range resource.AllViews {
		fmt.Printf("    %-12s  %d\n", view, stats.ByView[view])
	}
	fmt.Printf("  Measures:       %d\n", stats.Measures)
	fmt.Printf("  Findings:       %d\n", stats.Findings)
	if run != nil && len(run.Failed) > 0 {
		color.Red("  Failed views:   %s", strings.Join(run.Failed, ", "))
	}
	if run != nil && len(run.Skipped) > 0 {
		color.Yellow("  Skipped views:  %s", strings.Join(run.Skipped, ", "))
	}

	return nil
}

// CleanCmd deletes the result store.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	settings, err := g.settings()
	if err != nil {
		return err
	}

	storePath := settings.StorePath
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		return fmt.Errorf("no results at %s. Nothing to clean", storePath)
	}

	if !c.Force {
		fmt.Printf("Delete results at %s? [y/N] ", storePath)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(storePath); err != nil {
		return fmt.Errorf("deleting results: %w", err)
	}

	color.Green("Deleted %s", storePath)
	return nil
}

// SetupCmd writes the MCP client configuration for metrigraph.
type SetupCmd struct {
	Claude bool   `help:"Configure for Claude Code"`
	Cursor bool   `help:"Configure for Cursor"`
	Global bool   `help:"Write to the user's home directory instead of the project"`
	Dir    string `type:"path" default:"." help:"Project directory for local configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	config := generateMCPConfig(g.Config)

	// If no specific client is specified, output config to stdout
	if !c.Claude && !c.Cursor {
		jsonBytes, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	for _, client := range []struct {
		name    string
		enabled bool
	}{{"claude", c.Claude}, {"cursor", c.Cursor}} {
		if !client.enabled {
			continue
		}
		path, err := c.configPath(client.name)
		if err != nil {
			return err
		}
		if err := writeConfig(path, config); err != nil {
			return err
		}
		color.Green("✓ Created %s MCP config at %s", client.name, path)
	}
	return nil
}

func (c *SetupCmd) configPath(client string) (string, error) {
	base := c.Dir
	if c.Global {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		base = home
	}
	return filepath.Join(base, "."+client, "mcp.json"), nil
}

func generateMCPConfig(settingsPath string) map[string]any {
	args := []string{"serve", "--watch"}
	if settingsPath != "" {
		args = append([]string{"--config", settingsPath}, args...)
	}
	return map[string]any{
		"mcpServers": map[string]any{
			"metrigraph": map[string]any{
				"command": "metrigraph",
				"args":    args,
			},
		},
	}
}

func writeConfig(configPath string, config map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	content, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	content = append(content, '\n')

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Helper functions

func (g *Globals) settings() (*config.Settings, error) {
	settings, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return settings, nil
}

// logger writes text logs to stderr; stdout is left to command output.
func (g *Globals) logger(settings *config.Settings) *slog.Logger {
	level := settings.SlogLevel()
	switch {
	case g.Verbose:
		level = slog.LevelDebug
	case g.Quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openStore(settings *config.Settings, readOnly bool) (*storage.BadgerBackend, error) {
	dbPath := settings.StorePath
	if readOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("no results at %s. Run 'metrigraph import' first", dbPath)
		}
	} else if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

func loadRegistry(language string) (*metrics.Registry, error) {
	catalog, err := metrics.CatalogFor(language)
	if err != nil {
		return nil, err
	}
	return metrics.NewRegistry(catalog)
}

func importOptions(settings *config.Settings, store *storage.BadgerBackend, registry *metrics.Registry, logger *slog.Logger) pipeline.Options {
	return pipeline.Options{
		Settings:      settings,
		Sink:          store,
		Registry:      registry,
		BeforePublish: store.Clear,
		Logger:        logger,
	}
}

// recordRun saves the summary of every successful run to the store.
func recordRun(ctx context.Context, store storage.Store, logger *slog.Logger) func(*pipeline.Report, error) {
	return func(report *pipeline.Report, err error) {
		if err != nil || report == nil {
			return
		}
		if err := store.SaveRun(ctx, report.RunInfo(time.Now().UTC())); err != nil {
			logger.Warn("saving run failed", slog.Any("error", err))
		}
	}
}

func printReport(report *pipeline.Report) {
	color.Green("\n✓ Import complete")
	for _, vr := range report.Views {
		switch vr.Status {
		case pipeline.StatusDone:
			fmt.Printf("  %-10s %5d resources  %5d measures  %4d findings", vr.View, vr.Resources, vr.Measures, vr.Findings)
			if vr.Skipped > 0 {
				fmt.Printf("  (%d skipped)", vr.Skipped)
			}
			fmt.Println()
		case pipeline.StatusSkipped:
			color.Yellow("  %-10s skipped: %s", vr.View, vr.Reason)
		case pipeline.StatusFailed:
			color.Red("  %-10s failed: %v", vr.View, vr.Err)
		}
	}
	if report.Duplications > 0 {
		fmt.Printf("  Duplications:   %d\n", report.Duplications)
	}
	if report.License != "" {
		fmt.Printf("  License:        %s\n", report.License)
	}
	fmt.Printf("  Duration:       %.2fs\n", report.Duration.Seconds())
}

func joinViews(views []resource.View) string {
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Import   ImportCmd   `cmd:"" help:"Import the analyzer's graph artifact"`
	Inspect  InspectCmd  `cmd:"" help:"Describe a graph artifact"`
	Encode   EncodeCmd   `cmd:"" help:"Convert a YAML graph document into an artifact"`
	Metrics  MetricsCmd  `cmd:"" help:"List the metric catalog"`
	Query    QueryCmd    `cmd:"" help:"Search imported resources"`
	Measures MeasuresCmd `cmd:"" help:"Show the measures and findings of a resource"`
	Serve    ServeCmd    `cmd:"" help:"Start MCP server (stdio transport)"`
	Watch    WatchCmd    `cmd:"" help:"Re-import whenever the artifact changes"`
	Status   StatusCmd   `cmd:"" help:"Show what the result store holds"`
	Clean    CleanCmd    `cmd:"" help:"Delete the result store"`
	Setup    SetupCmd    `cmd:"" help:"Configure MCP for Claude Code / Cursor"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("metrigraph"),
		kong.Description("Import source code analysis graphs into a queryable result store"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
