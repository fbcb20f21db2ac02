package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/host"
	"github.com/Benny93/metrigraph/internal/metrics"
	"github.com/Benny93/metrigraph/internal/resource"
)

// LicenseSummary renders the artifact header entries of the known analyzers
// as "Display=value" pairs sorted by display name and joined by ';'.
// Header entries of other analyzers are ignored.
func LicenseSummary(header map[string]string, names map[string]string) string {
	var parts []string
	for analyzer, display := range names {
		value, ok := header[analyzer]
		if !ok {
			continue
		}
		parts = append(parts, display+"="+value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// publishLicense saves the license summary on the project resource. It
// returns the summary, or "" when the language has no license metric or the
// header names none of its analyzers.
func publishLicense(ctx context.Context, sink host.Sink, g *graph.Graph, registry *metrics.Registry, project string) (string, error) {
	key := registry.LicenseKey()
	if key == "" {
		return "", nil
	}
	summary := LicenseSummary(g.Header(), registry.HeaderLicenses())
	if summary == "" {
		return "", nil
	}

	err := sink.SaveMeasure(ctx, resource.Measure{
		ResourceKey: resource.ProjectKey(project),
		MetricKey:   key,
		Data:        summary,
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}
