package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Benny93/metrigraph/internal/resource"
)

// Sink receives the results of one import run.
type Sink interface {
	SaveResource(ctx context.Context, view resource.View, r *resource.Resource) error
	SaveMeasure(ctx context.Context, m resource.Measure) error
	AttachFinding(ctx context.Context, f resource.Finding) error
}

type measureKey struct {
	resource string
	metric   string
}

// DedupSink forwards to another Sink and drops any second SaveMeasure for
// the same (resource, metric) pair. Call Reset between runs.
type DedupSink struct {
	next   Sink
	logger *slog.Logger

	mu      sync.Mutex
	seen    map[measureKey]struct{}
	dropped int
}

// NewDedupSink wraps next. A nil logger uses slog.Default().
func NewDedupSink(next Sink, logger *slog.Logger) *DedupSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupSink{
		next:   next,
		logger: logger,
		seen:   make(map[measureKey]struct{}),
	}
}

// SaveResource implements Sink.
func (d *DedupSink) SaveResource(ctx context.Context, view resource.View, r *resource.Resource) error {
	return d.next.SaveResource(ctx, view, r)
}

// SaveMeasure implements Sink.
func (d *DedupSink) SaveMeasure(ctx context.Context, m resource.Measure) error {
	key := measureKey{resource: m.ResourceKey, metric: m.MetricKey}

	d.mu.Lock()
	if _, exists := d.seen[key]; exists {
		d.dropped++
		d.mu.Unlock()
		d.logger.Warn("dropping duplicate measure",
			slog.String("resource", m.ResourceKey),
			slog.String("metric", m.MetricKey),
		)
		return nil
	}
	d.seen[key] = struct{}{}
	d.mu.Unlock()

	if err := d.next.SaveMeasure(ctx, m); err != nil {
		return fmt.Errorf("saving measure %s on %s: %w", m.MetricKey, m.ResourceKey, err)
	}
	return nil
}

// AttachFinding implements Sink.
func (d *DedupSink) AttachFinding(ctx context.Context, f resource.Finding) error {
	return d.next.AttachFinding(ctx, f)
}

// Dropped returns the number of duplicate measures dropped since Reset.
func (d *DedupSink) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Reset forgets every saved pair.
func (d *DedupSink) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[measureKey]struct{})
	d.dropped = 0
}
