// Package pipeline runs an import: it loads the analyzer's graph artifact,
// rebuilds the component, logical, physical and clone views from it and
// publishes the resulting resources, measures and findings to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Benny93/metrigraph/internal/config"
	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/graphbin"
	"github.com/Benny93/metrigraph/internal/host"
	"github.com/Benny93/metrigraph/internal/metrics"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
	"github.com/Benny93/metrigraph/internal/views"
)

// ErrNoSink is returned by Run when Options.Sink is nil.
var ErrNoSink = errors.New("no sink configured")

// ProgressCallback is called while a view is walked with the number of
// nodes visited so far.
type ProgressCallback func(view resource.View, visited int)

// Options configures a run.
type Options struct {
	// Settings name the project, the artifact and the analysis mode.
	Settings *config.Settings

	// Sink receives the results.
	Sink host.Sink

	// Registry overrides the metric registry built from Settings.Language.
	Registry *metrics.Registry

	// FileSystem overrides the project file system built from
	// Settings.BaseDir.
	FileSystem host.FileSystem

	// BeforePublish runs once the artifact has loaded, before anything is
	// sent to the sink. Stores use it to drop the previous run's results.
	BeforePublish func(ctx context.Context) error

	// Progress, when set, receives walk progress.
	Progress ProgressCallback

	// Logger receives run diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// viewOrder pairs every view with the edge kind it walks, in run order.
var viewOrder = []struct {
	view resource.View
	kind graph.EdgeKind
}{
	{resource.ViewComponent, graph.EdgeKindComponentTree},
	{resource.ViewLogical, graph.EdgeKindLogicalTree},
	{resource.ViewPhysical, graph.EdgeKindPhysicalTree},
	{resource.ViewClone, graph.EdgeKindCloneTree},
}

// Run performs one import. An artifact that cannot be loaded aborts the run
// with an error. A view that fails is recorded in the report and the
// remaining views still run.
func Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	if opts.Settings == nil {
		return nil, fmt.Errorf("running import: %w", config.ErrMissingProjectKey)
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("running import: %w", err)
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("running import: %w", ErrNoSink)
	}

	settings := opts.Settings
	report := &Report{
		RunID:   uuid.NewString(),
		Project: settings.ProjectKey,
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("run", report.RunID), slog.String("project", settings.ProjectKey))

	registry, err := resolveRegistry(opts.Registry, settings.Language)
	if err != nil {
		return nil, err
	}

	artifact := settings.ArtifactPath()
	logger.Info("loading graph", slog.String("artifact", artifact))
	loadStart := time.Now()
	g, err := graphbin.LoadFile(artifact)
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	defer g.Release()
	logger.Info("graph loaded",
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.EdgeCount()),
		slog.Duration("took", time.Since(loadStart)),
	)

	fs := opts.FileSystem
	if fs == nil {
		pfs, err := host.NewProjectFileSystem(settings.BaseDir, host.ProjectFileSystemOptions{Language: settings.Language})
		if err != nil {
			return nil, fmt.Errorf("indexing project files: %w", err)
		}
		fs = pfs
	}

	if opts.BeforePublish != nil {
		if err := opts.BeforePublish(ctx); err != nil {
			return nil, fmt.Errorf("preparing sink: %w", err)
		}
	}

	sink := host.NewDedupSink(opts.Sink, logger)
	rm := newRunMetrics()

	license, err := publishLicense(ctx, sink, g, registry, settings.ProjectKey)
	if err != nil {
		logger.Warn("saving license summary failed", slog.Any("error", err))
	}
	report.License = license

	cfg := views.Config{
		Project:     settings.ProjectKey,
		Registry:    registry,
		FileSystem:  fs,
		Incremental: settings.Incremental(),
		Logger:      logger,
	}

	for _, step := range viewOrder {
		if err := ctx.Err(); err != nil {
			report.finish(start, sink.Dropped())
			return report, err
		}

		vr := runView(ctx, g, step.view, step.kind, cfg, sink, opts.Progress, logger)
		report.Views = append(report.Views, vr)
		report.Duplications += vr.Duplications
		rm.observeView(vr)
	}

	report.finish(start, sink.Dropped())
	rm.observeRun(report)

	if settings.MetricsFile != "" {
		if err := rm.writeTextfile(settings.MetricsFile); err != nil {
			logger.Warn("writing run metrics failed", slog.String("file", settings.MetricsFile), slog.Any("error", err))
		}
	}

	logger.Info("import done",
		slog.Duration("took", report.Duration),
		slog.Int("failed_views", len(report.Failed())),
		slog.Int("dropped_measures", report.DroppedMeasures),
	)
	return report, nil
}

func resolveRegistry(registry *metrics.Registry, language string) (*metrics.Registry, error) {
	if registry != nil {
		return registry, nil
	}
	catalog, err := metrics.CatalogFor(language)
	if err != nil {
		return nil, fmt.Errorf("loading metric catalog: %w", err)
	}
	registry, err = metrics.NewRegistry(catalog)
	if err != nil {
		return nil, fmt.Errorf("building metric registry: %w", err)
	}
	return registry, nil
}

// runView builds and publishes one view. Every outcome is reported in the
// returned ViewReport.
func runView(
	ctx context.Context,
	g *graph.Graph,
	view resource.View,
	kind graph.EdgeKind,
	cfg views.Config,
	sink host.Sink,
	progress ProgressCallback,
	logger *slog.Logger,
) ViewReport {
	vr := ViewReport{View: view, Status: StatusSkipped}
	logger = logger.With(slog.String("view", string(view)))

	if view == resource.ViewClone && cfg.Incremental {
		vr.Reason = "incremental mode"
		logger.Warn("clone view is not available in incremental mode")
		return vr
	}

	root := traversal.FindViewRoot(g, kind)
	if root == nil {
		vr.Reason = "no root node"
		logger.Debug("view root not found, skipping view")
		return vr
	}

	start := time.Now()
	vr.Nodes = traversal.CountReachable(g, root, kind)
	cfg.Capacity = vr.Nodes

	acc, err := views.New(view, cfg)
	if err != nil {
		return vr.fail(logger, err)
	}

	var onProgress traversal.ProgressFunc
	if progress != nil {
		onProgress = func(visited int) { progress(view, visited) }
	}

	logger.Info("processing view", slog.Int("nodes", vr.Nodes))
	if err := traversal.Walk(ctx, g, root, kind, acc, onProgress); err != nil {
		return vr.fail(logger, err)
	}

	result, err := acc.Finish()
	if err != nil {
		return vr.fail(logger, err)
	}
	vr.Skipped = len(result.Skipped)
	vr.Unknown = result.UnknownNodes

	if err := publish(ctx, sink, result, &vr); err != nil {
		return vr.fail(logger, err)
	}

	if result.Duplications != nil {
		if err := drainDuplications(ctx, sink, result.Duplications, &vr); err != nil {
			return vr.fail(logger, err)
		}
	}

	vr.Status = StatusDone
	vr.Duration = time.Since(start)
	logger.Info("view done",
		slog.Int("resources", vr.Resources),
		slog.Int("measures", vr.Measures),
		slog.Int("findings", vr.Findings),
		slog.Int("skipped", vr.Skipped),
		slog.Duration("took", vr.Duration),
	)
	return vr
}

// publish sends a finished view to the sink: resources in tree order, then
// measures, then findings.
func publish(ctx context.Context, sink host.Sink, result *views.Result, vr *ViewReport) error {
	for _, r := range result.Tree.Resources() {
		if err := sink.SaveResource(ctx, result.View, r); err != nil {
			return fmt.Errorf("saving resource %s: %w", r.Key, err)
		}
		vr.Resources++
	}
	for _, m := range result.Measures {
		if err := sink.SaveMeasure(ctx, m); err != nil {
			return err
		}
		vr.Measures++
	}
	for _, f := range result.Findings {
		if err := sink.AttachFinding(ctx, f); err != nil {
			return fmt.Errorf("attaching finding %s on %s: %w", f.Rule, f.ResourceKey, err)
		}
		vr.Findings++
	}
	return nil
}

// drainDuplications saves one duplications data measure per file. Records
// are removed as they are saved, so none is emitted twice.
func drainDuplications(ctx context.Context, sink host.Sink, records *views.DuplicationRecords, vr *ViewReport) error {
	return records.Drain(func(resourceKey string, classIDs []string) error {
		err := sink.SaveMeasure(ctx, resource.Measure{
			ResourceKey: resourceKey,
			MetricKey:   metrics.DuplicationsDataKey,
			Data:        views.EncodeDuplications(classIDs),
		})
		if err != nil {
			return err
		}
		vr.Duplications++
		vr.Measures++
		return nil
	})
}
