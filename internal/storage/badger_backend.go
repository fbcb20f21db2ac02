package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/metrigraph/internal/resource"
)

// Key prefixes for different data types
const (
	prefixResource = "r:"   // r:<view>:<key>
	prefixMeasure  = "m:"   // m:<resource>\x00<metric>
	prefixFinding  = "f:"   // f:<resource>\x00<rule>\x00<message>
	keyLastRun     = "run:last"
)

// BadgerBackend is a BadgerDB-backed Store.
type BadgerBackend struct {
	db       *badger.DB
	readOnly bool
	mu       sync.RWMutex
	index    *tokenIndex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{index: newTokenIndex()}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	b.db = db
	b.readOnly = readOnly

	if err := b.rebuildIndex(); err != nil {
		_ = b.db.Close()
		b.db = nil
		return err
	}
	return nil
}

// rebuildIndex loads every stored resource into the token index.
func (b *BadgerBackend) rebuildIndex() error {
	b.index = newTokenIndex()
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixResource)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r resource.Resource
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("rebuilding index: %w", err)
			}
			b.index.add(&r)
		}
		return nil
	})
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	return err
}

func (b *BadgerBackend) writable() error {
	if b.db == nil {
		return ErrNotInitialized
	}
	if b.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (b *BadgerBackend) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// SaveResource implements host.Sink.
func (b *BadgerBackend) SaveResource(ctx context.Context, view resource.View, r *resource.Resource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.writable(); err != nil {
		return err
	}

	stored := *r
	stored.View = view
	if err := b.set(resourceKey(view, r.Key), &stored); err != nil {
		return fmt.Errorf("saving resource: %w", err)
	}
	b.index.add(&stored)
	return nil
}

// SaveMeasure implements host.Sink. A later save of the same metric on the
// same resource replaces the earlier one.
func (b *BadgerBackend) SaveMeasure(ctx context.Context, m resource.Measure) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.writable(); err != nil {
		return err
	}
	if err := b.set(measureKey(m.ResourceKey, m.MetricKey), m); err != nil {
		return fmt.Errorf("saving measure: %w", err)
	}
	return nil
}

// AttachFinding implements host.Sink.
func (b *BadgerBackend) AttachFinding(ctx context.Context, f resource.Finding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.writable(); err != nil {
		return err
	}
	if err := b.set(findingKey(f), f); err != nil {
		return fmt.Errorf("attaching finding: %w", err)
	}
	return nil
}

// Resource returns a resource by view and key, or nil if not found.
func (b *BadgerBackend) Resource(ctx context.Context, view resource.View, key string) (*resource.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get([]byte(resourceKey(view, key)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting resource: %w", err)
	}

	var r resource.Resource
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling resource: %w", err)
	}
	return &r, nil
}

// Resources returns all resources of a view ordered by key.
func (b *BadgerBackend) Resources(ctx context.Context, view resource.View) ([]*resource.Resource, error) {
	var out []*resource.Resource
	err := b.scan(prefixResource+string(view)+":", func(val []byte) error {
		var r resource.Resource
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("unmarshaling resource: %w", err)
		}
		out = append(out, &r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Measures returns the measures of a resource ordered by metric key.
func (b *BadgerBackend) Measures(ctx context.Context, resourceKey string) ([]resource.Measure, error) {
	var out []resource.Measure
	err := b.scan(prefixMeasure+resourceKey+"\x00", func(val []byte) error {
		var m resource.Measure
		if err := json.Unmarshal(val, &m); err != nil {
			return fmt.Errorf("unmarshaling measure: %w", err)
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricKey < out[j].MetricKey })
	return out, nil
}

// Findings returns the findings of a resource ordered by rule.
func (b *BadgerBackend) Findings(ctx context.Context, resourceKey string) ([]resource.Finding, error) {
	var out []resource.Finding
	err := b.scan(prefixFinding+resourceKey+"\x00", func(val []byte) error {
		var f resource.Finding
		if err := json.Unmarshal(val, &f); err != nil {
			return fmt.Errorf("unmarshaling finding: %w", err)
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortFindings(out)
	return out, nil
}

// scan calls fn with the value of every key under prefix.
func (b *BadgerBackend) scan(prefix string, fn func(val []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrNotInitialized
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// count returns the number of keys under prefix.
func (b *BadgerBackend) count(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// Search finds resources whose names match the query tokens.
func (b *BadgerBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}
	return b.index.search(query, limit), nil
}

// Stats counts stored results.
func (b *BadgerBackend) Stats(ctx context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return Stats{}, ErrNotInitialized
	}

	stats := Stats{ByView: make(map[resource.View]int)}
	err := b.db.View(func(txn *badger.Txn) error {
		for _, view := range resource.AllViews {
			n := b.count(txn, prefixResource+string(view)+":")
			if n > 0 {
				stats.ByView[view] = n
			}
			stats.Resources += n
		}
		stats.Measures = b.count(txn, prefixMeasure)
		stats.Findings = b.count(txn, prefixFinding)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("counting: %w", err)
	}
	return stats, nil
}

// Clear removes every stored result.
func (b *BadgerBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.writable(); err != nil {
		return err
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("dropping all keys: %w", err)
	}
	b.index = newTokenIndex()
	return nil
}

// SaveRun records the summary of a finished run.
func (b *BadgerBackend) SaveRun(ctx context.Context, info RunInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.writable(); err != nil {
		return err
	}
	if err := b.set(keyLastRun, info); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// LastRun returns the last recorded run, or nil if there is none.
func (b *BadgerBackend) LastRun(ctx context.Context) (*RunInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get([]byte(keyLastRun))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting last run: %w", err)
	}

	var info RunInfo
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &info)
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &info, nil
}

func resourceKey(view resource.View, key string) string {
	return prefixResource + string(view) + ":" + key
}

func measureKey(resourceKey, metricKey string) string {
	return prefixMeasure + resourceKey + "\x00" + metricKey
}

func findingKey(f resource.Finding) string {
	return prefixFinding + f.ResourceKey + "\x00" + f.Rule + "\x00" + f.Message
}

func sortFindings(fs []resource.Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Rule != fs[j].Rule {
			return fs[i].Rule < fs[j].Rule
		}
		return fs[i].Message < fs[j].Message
	})
}
