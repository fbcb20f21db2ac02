// Package metrics provides the registry of metric definitions the analyzer
// publishes. Definitions come from catalogs embedded as YAML: a core catalog
// shared by all languages and one catalog per language that adds ruleset
// and license metrics.
package metrics

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// KeyPrefix prefixes every analyzer metric key. A node attribute named
// "LOC" carries the value of metric "SM:LOC".
const KeyPrefix = "SM:"

// DuplicationsDataKey is the host measure carrying clone class lists.
const DuplicationsDataKey = "duplications_data"

// ValueType is the type of a metric's values.
type ValueType string

const (
	ValueTypeInt     ValueType = "INT"
	ValueTypeFloat   ValueType = "FLOAT"
	ValueTypePercent ValueType = "PERCENT"
	ValueTypeData    ValueType = "DATA"
	ValueTypeString  ValueType = "STRING"
)

// Direction tells whether higher values are better or worse.
type Direction string

const (
	DirectionBetter Direction = "better"
	DirectionWorse  Direction = "worse"
	DirectionNone   Direction = "none"
)

// Metric is one metric definition.
type Metric struct {
	ID          int       `yaml:"id" json:"id"`
	Key         string    `yaml:"key" json:"key"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Domain      string    `yaml:"domain" json:"domain"`
	Type        ValueType `yaml:"type" json:"type"`
	Direction   Direction `yaml:"direction" json:"direction"`
	Qualitative bool      `yaml:"qualitative" json:"qualitative"`
}

// Catalog is a language specific extension of the core metrics.
type Catalog interface {
	// Language is the short language key ("py").
	Language() string

	// RulesetMetrics returns the language's metric definitions.
	RulesetMetrics() []Metric

	// LicenseMetricKey is the key the license summary is published under.
	LicenseMetricKey() string

	// HeaderLicenses maps artifact header analyzer names to display names.
	HeaderLicenses() map[string]string
}

// catalogFile is the YAML layout of an embedded catalog.
type catalogFile struct {
	Language       string            `yaml:"language"`
	LicenseMetric  string            `yaml:"license_metric"`
	HeaderLicenses map[string]string `yaml:"header_licenses"`
	Metrics        []Metric          `yaml:"metrics"`
}

type yamlCatalog struct {
	file catalogFile
}

func (c *yamlCatalog) Language() string { return c.file.Language }

func (c *yamlCatalog) RulesetMetrics() []Metric {
	result := make([]Metric, len(c.file.Metrics))
	copy(result, c.file.Metrics)
	return result
}

func (c *yamlCatalog) LicenseMetricKey() string { return c.file.LicenseMetric }

func (c *yamlCatalog) HeaderLicenses() map[string]string {
	result := make(map[string]string, len(c.file.HeaderLicenses))
	for k, v := range c.file.HeaderLicenses {
		result[k] = v
	}
	return result
}

// ParseCatalog parses a catalog document.
func ParseCatalog(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing metric catalog: %w", err)
	}
	if file.Language == "" {
		return nil, fmt.Errorf("parsing metric catalog: %w", ErrMissingLanguage)
	}
	for i, m := range file.Metrics {
		if m.Key == "" {
			return nil, fmt.Errorf("catalog %s metric #%d: %w", file.Language, i, ErrMissingKey)
		}
		if m.Direction == "" {
			file.Metrics[i].Direction = DirectionNone
		}
	}
	return &yamlCatalog{file: file}, nil
}

func loadEmbedded(name string) (Catalog, error) {
	data, err := catalogFS.ReadFile("catalog/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", name, err)
	}
	return ParseCatalog(data)
}

func mustLoadEmbedded(name string) Catalog {
	c, err := loadEmbedded(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Python returns the embedded Python catalog.
func Python() Catalog {
	return mustLoadEmbedded("python")
}

// CatalogFor returns the embedded catalog for a language key or name.
func CatalogFor(language string) (Catalog, error) {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "py", "python":
		return Python(), nil
	default:
		return nil, fmt.Errorf("catalog for %q: %w", language, ErrUnknownLanguage)
	}
}

// Languages lists the language keys with an embedded catalog.
func Languages() []string {
	entries, err := catalogFS.ReadDir("catalog")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".yaml")
		if name == "core" {
			continue
		}
		c, err := loadEmbedded(name)
		if err != nil {
			continue
		}
		langs = append(langs, c.Language())
	}
	sort.Strings(langs)
	return langs
}
