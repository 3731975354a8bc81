package schema

import "sort"

// FieldSet is a set of flattened dotted field paths describing the shape of
// an endpoint's payloads. Membership is all that matters; order and nesting
// depth are irrelevant for comparison.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from field names.
func NewFieldSet(fields ...string) FieldSet {
	set := make(FieldSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}

	return set
}

// Contains reports whether field is a member of the set.
func (fs FieldSet) Contains(field string) bool {
	_, ok := fs[field]

	return ok
}

// Equal reports whether both sets have exactly the same members.
func (fs FieldSet) Equal(other FieldSet) bool {
	if len(fs) != len(other) {
		return false
	}

	for f := range fs {
		if !other.Contains(f) {
			return false
		}
	}

	return true
}

// Diff returns the members of fs that are absent from other, sorted. Always
// non-nil so change reports marshal as [] rather than null.
func (fs FieldSet) Diff(other FieldSet) []string {
	missing := []string{}

	for f := range fs {
		if !other.Contains(f) {
			missing = append(missing, f)
		}
	}

	sort.Strings(missing)

	return missing
}

// Sorted returns the members in lexical order, for stable persistence and logs.
func (fs FieldSet) Sorted() []string {
	fields := make([]string, 0, len(fs))
	for f := range fs {
		fields = append(fields, f)
	}

	sort.Strings(fields)

	return fields
}

// Clone returns an independent copy of the set.
func (fs FieldSet) Clone() FieldSet {
	clone := make(FieldSet, len(fs))
	for f := range fs {
		clone[f] = struct{}{}
	}

	return clone
}
