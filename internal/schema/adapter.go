package schema

import (
	"context"
	"fmt"
	"strings"
)

// Adapter normalizes payloads written under an old schema version to the
// endpoint's current field names at read time.
//
// The adapter consults the registry history, not a fixed rename table: it
// replays every version step between the payload's version and the current
// one, applying each step's rename. A step counts as a rename only when its
// diff is exactly one field removed and one field added under the same parent
// path; anything wider (multiple additions, removals without a counterpart)
// carries no mapping and leaves the payload's fields untouched.
//
// The adapter never writes to the registry.
type Adapter struct {
	registry *Registry
}

// NewAdapter creates an adapter over the given registry.
func NewAdapter(registry *Registry) *Adapter {
	return &Adapter{registry: registry}
}

// Normalize rewrites renamed fields in payload from the given version to the
// endpoint's current version, preserving values unchanged. The input payload
// is never mutated; the returned map is an independent copy.
//
// Identity transform when version already equals the current version.
// Idempotent: normalizing an already-normalized payload changes nothing.
//
// Fails with ErrUnmappableSchemaVersion when version is absent from the
// endpoint's recorded history or the chain of recorded versions to the
// current one has a gap.
func (a *Adapter) Normalize(ctx context.Context, endpoint string, payload map[string]any, version Version) (map[string]any, error) {
	current, err := a.registry.CurrentVersion(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	normalized, ok := clonePayload(payload).(map[string]any)
	if !ok {
		normalized = map[string]any{}
	}

	if version == current {
		return normalized, nil
	}

	history, err := a.registry.Versions(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	start := -1

	for i, entry := range history {
		if entry.Version == version {
			start = i

			break
		}
	}

	if start == -1 {
		return nil, fmt.Errorf("%w: %s %s is not in the recorded history",
			ErrUnmappableSchemaVersion, endpoint, version)
	}

	for i := start; i < len(history)-1; i++ {
		prev, next := history[i], history[i+1]

		if next.Version != prev.Version.NextMinor() {
			return nil, fmt.Errorf("%w: %s history jumps from %s to %s",
				ErrUnmappableSchemaVersion, endpoint, prev.Version, next.Version)
		}

		oldName, newName, isRename := renameStep(prev.FieldSet(), next.FieldSet())
		if !isRename {
			continue
		}

		applyRename(normalized, oldName, newName)
	}

	return normalized, nil
}

// renameStep reports the single rename between two consecutive field sets,
// if there is one: exactly one field removed, one added, same parent path.
func renameStep(prev, next FieldSet) (oldName, newName string, ok bool) {
	removed := prev.Diff(next)
	added := next.Diff(prev)

	if len(removed) != 1 || len(added) != 1 {
		return "", "", false
	}

	oldName, newName = removed[0], added[0]
	if parentPath(oldName) != parentPath(newName) {
		return "", "", false
	}

	return oldName, newName, true
}

func parentPath(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[:i]
	}

	return ""
}

func leafName(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[i+1:]
	}

	return field
}

// applyRename renames oldPath to newPath everywhere it occurs in payload,
// descending through objects along the dotted parent path and through any
// arrays encountered on the way. Values are moved, never altered.
func applyRename(payload map[string]any, oldPath, newPath string) {
	parent := parentPath(oldPath)

	var steps []string
	if parent != "" {
		steps = strings.Split(parent, ".")
	}

	renameAt(payload, steps, leafName(oldPath), leafName(newPath))
}

func renameAt(node any, steps []string, oldLeaf, newLeaf string) {
	switch v := node.(type) {
	case map[string]any:
		if len(steps) == 0 {
			if value, present := v[oldLeaf]; present {
				if _, taken := v[newLeaf]; !taken {
					v[newLeaf] = value
					delete(v, oldLeaf)
				}
			}

			return
		}

		if child, present := v[steps[0]]; present {
			renameAt(child, steps[1:], oldLeaf, newLeaf)
		}
	case []any:
		for _, element := range v {
			renameAt(element, steps, oldLeaf, newLeaf)
		}
	}
}

// clonePayload deep-copies decoded JSON values (maps, slices, scalars).
func clonePayload(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = clonePayload(child)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = clonePayload(element)
		}

		return out
	default:
		return v
	}
}
