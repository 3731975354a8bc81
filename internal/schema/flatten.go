package schema

// Flatten computes the flattened field set of a decoded JSON payload.
//
// Nested object fields become dotted paths ("guestCheck.taxes"). Array
// elements are walked without an index component, so every object shape that
// appears inside an array contributes its fields under the array's own path.
// Scalars and empty containers are leaves.
//
// Pure recursive walk; the payload is never modified.
func Flatten(payload any) FieldSet {
	set := make(FieldSet)
	flattenInto(set, "", payload)

	return set
}

func flattenInto(set FieldSet, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}

			set[path] = struct{}{}
			flattenInto(set, path, child)
		}
	case []any:
		for _, element := range v {
			// Index-free: all elements share the array's path.
			flattenInto(set, prefix, element)
		}
	}
}
