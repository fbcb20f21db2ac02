package metrics

import (
	"fmt"
	"sort"
)

// Registry is the read-only table of metric definitions: the core catalog
// plus the language catalogs it was built with. Build it once and pass it
// by reference; it is safe for concurrent reads.
type Registry struct {
	byKey  map[string]Metric
	byID   map[int]Metric
	sorted []Metric

	licenseKey     string
	headerLicenses map[string]string
}

// NewRegistry builds a registry from the core catalog and the given
// language catalogs. Duplicate keys or ids across catalogs are rejected.
// The license metric and header mapping come from the first catalog that
// defines them.
func NewRegistry(langs ...Catalog) (*Registry, error) {
	core, err := loadEmbedded("core")
	if err != nil {
		return nil, err
	}

	r := &Registry{
		byKey:          make(map[string]Metric),
		byID:           make(map[int]Metric),
		headerLicenses: make(map[string]string),
	}

	for _, c := range append([]Catalog{core}, langs...) {
		for _, m := range c.RulesetMetrics() {
			if _, exists := r.byKey[m.Key]; exists {
				return nil, fmt.Errorf("catalog %s metric %s: %w", c.Language(), m.Key, ErrDuplicateKey)
			}
			if other, exists := r.byID[m.ID]; exists {
				return nil, fmt.Errorf("catalog %s metric %s id %d (used by %s): %w",
					c.Language(), m.Key, m.ID, other.Key, ErrDuplicateID)
			}
			r.byKey[m.Key] = m
			r.byID[m.ID] = m
		}
		if r.licenseKey == "" && c.LicenseMetricKey() != "" {
			r.licenseKey = c.LicenseMetricKey()
			r.headerLicenses = c.HeaderLicenses()
		}
	}

	r.sorted = make([]Metric, 0, len(r.byKey))
	for _, m := range r.byKey {
		r.sorted = append(r.sorted, m)
	}
	sort.Slice(r.sorted, func(i, j int) bool {
		return r.sorted[i].Key < r.sorted[j].Key
	})
	return r, nil
}

// ByID returns the metric with the given id.
func (r *Registry) ByID(id int) (Metric, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// ByKey returns the metric with exactly the given key ("SM:LOC").
func (r *Registry) ByKey(key string) (Metric, bool) {
	m, ok := r.byKey[key]
	return m, ok
}

// ByKeys returns the metrics for keys in the given order. Unknown keys are
// dropped.
func (r *Registry) ByKeys(keys []string) []Metric {
	result := make([]Metric, 0, len(keys))
	for _, k := range keys {
		if m, ok := r.byKey[k]; ok {
			result = append(result, m)
		}
	}
	return result
}

// ForAttribute returns the metric carried by a node attribute name.
func (r *Registry) ForAttribute(attr string) (Metric, bool) {
	return r.ByKey(KeyPrefix + attr)
}

// All returns every metric sorted by key.
func (r *Registry) All() []Metric {
	result := make([]Metric, len(r.sorted))
	copy(result, r.sorted)
	return result
}

// Len returns the number of metrics.
func (r *Registry) Len() int {
	return len(r.sorted)
}

// LicenseKey returns the key of the language license metric, or "" when no
// language catalog defines one.
func (r *Registry) LicenseKey() string {
	return r.licenseKey
}

// HeaderLicenses returns the analyzer name to display name mapping used for
// the license summary.
func (r *Registry) HeaderLicenses() map[string]string {
	result := make(map[string]string, len(r.headerLicenses))
	for k, v := range r.headerLicenses {
		result[k] = v
	}
	return result
}
