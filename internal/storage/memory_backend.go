package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Benny93/metrigraph/internal/resource"
)

// MemoryBackend is an in-memory Store for tests and dry runs.
type MemoryBackend struct {
	mu        sync.RWMutex
	resources map[string]*resource.Resource
	measures  map[string]resource.Measure
	findings  map[string]resource.Finding
	lastRun   *RunInfo
	index     *tokenIndex
}

// NewMemoryBackend creates a new in-memory store.
func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{}
	m.reset()
	return m
}

func (m *MemoryBackend) reset() {
	m.resources = make(map[string]*resource.Resource)
	m.measures = make(map[string]resource.Measure)
	m.findings = make(map[string]resource.Finding)
	m.lastRun = nil
	m.index = newTokenIndex()
}

// Initialize implements Store. The path is ignored.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	return nil
}

// Close implements Store.
func (m *MemoryBackend) Close() error {
	return nil
}

// Clear implements Store.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// SaveResource implements host.Sink.
func (m *MemoryBackend) SaveResource(ctx context.Context, view resource.View, r *resource.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *r
	stored.View = view
	m.resources[resourceKey(view, r.Key)] = &stored
	m.index.add(&stored)
	return nil
}

// SaveMeasure implements host.Sink.
func (m *MemoryBackend) SaveMeasure(ctx context.Context, measure resource.Measure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.measures[measureKey(measure.ResourceKey, measure.MetricKey)] = measure
	return nil
}

// AttachFinding implements host.Sink.
func (m *MemoryBackend) AttachFinding(ctx context.Context, f resource.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings[findingKey(f)] = f
	return nil
}

// Resource implements Store.
func (m *MemoryBackend) Resource(ctx context.Context, view resource.View, key string) (*resource.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.resources[resourceKey(view, key)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// Resources implements Store.
func (m *MemoryBackend) Resources(ctx context.Context, view resource.View) ([]*resource.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*resource.Resource
	for _, r := range m.resources {
		if r.View == view {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Measures implements Store.
func (m *MemoryBackend) Measures(ctx context.Context, resourceKey string) ([]resource.Measure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []resource.Measure
	for _, measure := range m.measures {
		if measure.ResourceKey == resourceKey {
			out = append(out, measure)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricKey < out[j].MetricKey })
	return out, nil
}

// Findings implements Store.
func (m *MemoryBackend) Findings(ctx context.Context, resourceKey string) ([]resource.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []resource.Finding
	for _, f := range m.findings {
		if f.ResourceKey == resourceKey {
			out = append(out, f)
		}
	}
	sortFindings(out)
	return out, nil
}

// Search implements Store.
func (m *MemoryBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.search(query, limit), nil
}

// Stats implements Store.
func (m *MemoryBackend) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Resources: len(m.resources),
		Measures:  len(m.measures),
		Findings:  len(m.findings),
		ByView:    make(map[resource.View]int),
	}
	for _, r := range m.resources {
		stats.ByView[r.View]++
	}
	return stats, nil
}

// SaveRun implements Store.
func (m *MemoryBackend) SaveRun(ctx context.Context, info RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = &info
	return nil
}

// LastRun implements Store.
func (m *MemoryBackend) LastRun(ctx context.Context) (*RunInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastRun == nil {
		return nil, nil
	}
	cp := *m.lastRun
	return &cp, nil
}
