// Package storage persists the results of import runs.
//
// It defines the Store interface that all store implementations must
// satisfy, along with the query types shared by the CLI and the MCP server.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Benny93/metrigraph/internal/host"
	"github.com/Benny93/metrigraph/internal/resource"
)

// ErrNotInitialized is returned when a store is used before Initialize.
var ErrNotInitialized = errors.New("store not initialized")

// ErrReadOnly is returned when writing to a store opened read-only.
var ErrReadOnly = errors.New("store opened read-only")

// SearchResult represents a resource matching a search query.
type SearchResult struct {
	// Key is the resource key.
	Key string

	// Score is the relevance score (higher is better).
	Score float64

	// Name is the resource name.
	Name string

	// Qualifier is the resource kind.
	Qualifier resource.Qualifier

	// View is the tree the resource belongs to.
	View resource.View

	// Path is the project relative path, for physical resources.
	Path string
}

// RunInfo summarizes the last import run written to a store.
type RunInfo struct {
	RunID     string        `json:"run_id"`
	Project   string        `json:"project"`
	Finished  time.Time     `json:"finished"`
	Duration  time.Duration `json:"duration"`
	Failed    []string      `json:"failed,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Resources int           `json:"resources"`
	Measures  int           `json:"measures"`
	Findings  int           `json:"findings"`
}

// Stats counts what a store holds.
type Stats struct {
	Resources int
	Measures  int
	Findings  int
	ByView    map[resource.View]int
}

// Store is a host.Sink that keeps what it receives and answers queries
// about it.
//
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	host.Sink

	// Initialize opens or creates the store at the given path.
	// If readOnly is true, the store is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the store.
	Close() error

	// Clear removes every stored result, ahead of a new run.
	Clear(ctx context.Context) error

	// Resource returns a resource by view and key, or nil if not found.
	Resource(ctx context.Context, view resource.View, key string) (*resource.Resource, error)

	// Resources returns all resources of a view ordered by key.
	Resources(ctx context.Context, view resource.View) ([]*resource.Resource, error)

	// Measures returns the measures of a resource ordered by metric key.
	Measures(ctx context.Context, resourceKey string) ([]resource.Measure, error)

	// Findings returns the findings of a resource ordered by rule.
	Findings(ctx context.Context, resourceKey string) ([]resource.Finding, error)

	// Search finds resources whose names match the query tokens.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Stats counts stored results.
	Stats(ctx context.Context) (Stats, error)

	// SaveRun records the summary of a finished run.
	SaveRun(ctx context.Context, info RunInfo) error

	// LastRun returns the last recorded run, or nil if there is none.
	LastRun(ctx context.Context) (*RunInfo, error)
}

var (
	_ Store = (*BadgerBackend)(nil)
	_ Store = (*MemoryBackend)(nil)
)
