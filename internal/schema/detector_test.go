package schema

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_NoChange(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterNewVersion(ctx, "getGuestChecks", NewFieldSet("guestCheckId", "taxes"))
	require.NoError(t, err)

	report, err := NewDetector(r).Detect(ctx, "getGuestChecks", NewFieldSet("taxes", "guestCheckId"))

	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Empty(t, report.FieldsAdded)
	assert.Empty(t, report.FieldsRemoved)
}

func TestDetector_RenameReportedAsRemoveAndAdd(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterNewVersion(ctx, "getGuestChecks", NewFieldSet("guestCheckId", "taxes"))
	require.NoError(t, err)

	report, err := NewDetector(r).Detect(ctx, "getGuestChecks", NewFieldSet("guestCheckId", "taxation"))

	require.NoError(t, err)
	assert.False(t, report.Empty())
	assert.Equal(t, []string{"taxation"}, report.FieldsAdded)
	assert.Equal(t, []string{"taxes"}, report.FieldsRemoved)
	assert.Equal(t, "getGuestChecks", report.Endpoint)
	assert.False(t, report.DetectedAt.IsZero())
}

func TestDetector_AddedFieldOnly(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterNewVersion(ctx, "getTransactions", NewFieldSet("transactionId"))
	require.NoError(t, err)

	report, err := NewDetector(r).Detect(ctx, "getTransactions", NewFieldSet("transactionId", "tipAmount"))

	require.NoError(t, err)
	assert.Equal(t, []string{"tipAmount"}, report.FieldsAdded)
	assert.Empty(t, report.FieldsRemoved)
}

func TestChangeReport_EmptySidesMarshalAsArrays(t *testing.T) {
	// Consumers of persisted reports and audit events rely on both sides
	// always being arrays, never null.
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterNewVersion(ctx, "getTransactions", NewFieldSet("transactionId"))
	require.NoError(t, err)

	report, err := NewDetector(r).Detect(ctx, "getTransactions", NewFieldSet("transactionId", "tipAmount"))
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"campos_adicionados":["tipAmount"]`)
	assert.Contains(t, string(data), `"campos_removidos":[]`)
	assert.NotContains(t, string(data), "null")
}

func TestFieldSetDiff_EmptyResultIsNonNil(t *testing.T) {
	diff := NewFieldSet("a").Diff(NewFieldSet("a", "b"))

	assert.NotNil(t, diff)
	assert.Empty(t, diff)
}

func TestDetector_UnseenEndpoint(t *testing.T) {
	r := newTestRegistry(t)

	_, err := NewDetector(r).Detect(context.Background(), "getChargeBack", NewFieldSet("chargeBackId"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSchemaVersion))
}

func TestDetector_NestedRename(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterNewVersion(ctx, "getGuestChecks",
		NewFieldSet("guestCheck", "guestCheck.taxes", "guestCheck.total"))
	require.NoError(t, err)

	report, err := NewDetector(r).Detect(ctx, "getGuestChecks",
		NewFieldSet("guestCheck", "guestCheck.taxation", "guestCheck.total"))

	require.NoError(t, err)
	assert.Equal(t, []string{"guestCheck.taxation"}, report.FieldsAdded)
	assert.Equal(t, []string{"guestCheck.taxes"}, report.FieldsRemoved)
}

func TestDetector_DoesNotMutateRegistry(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.RegisterNewVersion(ctx, "getGuestChecks", NewFieldSet("guestCheckId", "taxes"))
	require.NoError(t, err)

	_, err = NewDetector(r).Detect(ctx, "getGuestChecks", NewFieldSet("guestCheckId", "taxation"))
	require.NoError(t, err)

	current, err := r.CurrentVersion(ctx, "getGuestChecks")
	require.NoError(t, err)
	assert.Equal(t, InitialVersion, current)
}
