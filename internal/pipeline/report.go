package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/storage"
	"github.com/Benny93/metrigraph/internal/traversal"
)

// ViewStatus is the outcome of one view.
type ViewStatus string

const (
	StatusDone    ViewStatus = "done"
	StatusSkipped ViewStatus = "skipped"
	StatusFailed  ViewStatus = "failed"
)

// ViewReport describes what happened to one view.
type ViewReport struct {
	View   resource.View
	Status ViewStatus

	// Reason explains a skipped view.
	Reason string

	// Nodes is the size of the view's subtree.
	Nodes int

	Resources    int
	Measures     int
	Findings     int
	Duplications int

	// Skipped counts nodes left out of the view, such as unmapped paths.
	Skipped int

	// Unknown counts visited nodes of an unknown type.
	Unknown int

	Duration time.Duration

	// Err is set for failed views.
	Err error
}

func (vr ViewReport) fail(logger *slog.Logger, err error) ViewReport {
	vr.Status = StatusFailed
	vr.Err = err

	attrs := []any{slog.Any("error", err)}
	var terr *traversal.TraversalError
	if errors.As(err, &terr) {
		attrs = append(attrs, slog.Uint64("node", uint64(terr.NodeID)))
	}
	logger.Warn("view failed", attrs...)
	return vr
}

// Report summarizes a run.
type Report struct {
	RunID   string
	Project string
	Views   []ViewReport

	// License is the published license summary, "" when none was saved.
	License string

	Duplications int

	// DroppedMeasures counts repeated saves of the same metric on the same
	// resource that were not forwarded.
	DroppedMeasures int

	Duration time.Duration
}

func (r *Report) finish(start time.Time, dropped int) {
	r.Duration = time.Since(start)
	r.DroppedMeasures = dropped
}

// View returns the report of view, or nil if it did not run.
func (r *Report) View(view resource.View) *ViewReport {
	for i := range r.Views {
		if r.Views[i].View == view {
			return &r.Views[i]
		}
	}
	return nil
}

// Failed lists the views that failed.
func (r *Report) Failed() []resource.View {
	return r.withStatus(StatusFailed)
}

// Skipped lists the views that were skipped.
func (r *Report) Skipped() []resource.View {
	return r.withStatus(StatusSkipped)
}

func (r *Report) withStatus(status ViewStatus) []resource.View {
	var out []resource.View
	for _, vr := range r.Views {
		if vr.Status == status {
			out = append(out, vr.View)
		}
	}
	return out
}

// Totals sums resources, measures and findings over all views.
func (r *Report) Totals() (resources, measures, findings int) {
	for _, vr := range r.Views {
		resources += vr.Resources
		measures += vr.Measures
		findings += vr.Findings
	}
	return resources, measures, findings
}

// RunInfo converts the report into the summary kept by a store.
func (r *Report) RunInfo(finished time.Time) storage.RunInfo {
	resources, measures, findings := r.Totals()
	info := storage.RunInfo{
		RunID:     r.RunID,
		Project:   r.Project,
		Finished:  finished,
		Duration:  r.Duration,
		Resources: resources,
		Measures:  measures,
		Findings:  findings,
	}
	for _, v := range r.Failed() {
		info.Failed = append(info.Failed, string(v))
	}
	for _, v := range r.Skipped() {
		info.Skipped = append(info.Skipped, string(v))
	}
	return info
}
