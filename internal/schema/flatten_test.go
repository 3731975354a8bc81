package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, raw string) map[string]any {
	t.Helper()

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	return payload
}

func TestFlatten_TopLevel(t *testing.T) {
	payload := decodeJSON(t, `{"guestCheckId": "X", "chkNum": 1001, "chkTtl": 50.05}`)

	fields := Flatten(payload)

	assert.Equal(t, []string{"chkNum", "chkTtl", "guestCheckId"}, fields.Sorted())
}

func TestFlatten_NestedObject(t *testing.T) {
	payload := decodeJSON(t, `{"guestCheck": {"taxes": [{"taxNum": 1}], "total": 10}}`)

	fields := Flatten(payload)

	assert.Equal(t, []string{
		"guestCheck",
		"guestCheck.taxes",
		"guestCheck.taxes.taxNum",
		"guestCheck.total",
	}, fields.Sorted())
}

func TestFlatten_ArrayElementsShareThePath(t *testing.T) {
	// Elements with different shapes contribute the union of their fields.
	payload := decodeJSON(t, `{"items": [{"name": "a"}, {"name": "b", "price": 5}]}`)

	fields := Flatten(payload)

	assert.Equal(t, []string{"items", "items.name", "items.price"}, fields.Sorted())
}

func TestFlatten_Scalars(t *testing.T) {
	payload := decodeJSON(t, `{"a": null, "b": true, "c": "s", "d": 1.5, "e": [], "f": {}}`)

	fields := Flatten(payload)

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, fields.Sorted())
}

func TestFlatten_Deterministic(t *testing.T) {
	payload := decodeJSON(t, `{"guestCheck": {"taxes": [{"taxNum": 1, "rate": 0.1}]}}`)

	assert.True(t, Flatten(payload).Equal(Flatten(payload)))
}
