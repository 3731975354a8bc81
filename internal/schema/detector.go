package schema

import (
	"context"
	"time"
)

// ChangeReport describes the field-level difference between an incoming
// payload and the registry's current field set for its endpoint.
//
// Produced transiently on each ingestion; it may be persisted as an audit
// entry but is never the source of truth for the schema itself. A rename
// shows up as one removal plus one addition; the detector makes no attempt
// to infer that the two are semantically a single rename.
type ChangeReport struct {
	Endpoint      string    `json:"endpoint"`
	FieldsAdded   []string  `json:"campos_adicionados"`
	FieldsRemoved []string  `json:"campos_removidos"`
	DetectedAt    time.Time `json:"detectado_em"`
}

// Empty reports whether no change was detected. This is the common case and
// must not trigger any registry mutation.
func (r ChangeReport) Empty() bool {
	return len(r.FieldsAdded) == 0 && len(r.FieldsRemoved) == 0
}

// Detector compares incoming payload field sets against the registry.
// It only reads the registry; registering new versions is the writer's call.
type Detector struct {
	registry *Registry
	now      func() time.Time
}

// NewDetector creates a detector over the given registry.
func NewDetector(registry *Registry) *Detector {
	return &Detector{
		registry: registry,
		now:      time.Now,
	}
}

// Detect compares fields against the endpoint's current recorded field set.
// Sets are compared by membership only.
//
// Fails with ErrUnknownSchemaVersion when the endpoint has no recorded
// history yet; first-time registration is the caller's decision, not a
// "change".
func (d *Detector) Detect(ctx context.Context, endpoint string, fields FieldSet) (ChangeReport, error) {
	current, err := d.registry.CurrentVersion(ctx, endpoint)
	if err != nil {
		return ChangeReport{}, err
	}

	recorded, err := d.registry.FieldSet(ctx, endpoint, current)
	if err != nil {
		return ChangeReport{}, err
	}

	return ChangeReport{
		Endpoint:      endpoint,
		FieldsAdded:   fields.Diff(recorded),
		FieldsRemoved: recorded.Diff(fields),
		DetectedAt:    d.now().UTC(),
	}, nil
}
