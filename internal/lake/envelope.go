package lake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wire format note: stored field names are Portuguese, matching the lake's
// original operators ("metadados", "dados", "data_negocio", ...). The format
// is append-only: metadata is never mutated after write; a schema-version
// change produces a new file, never an in-place edit.

// Sentinel errors for envelope validation.
var (
	ErrMissingEndpoint  = errors.New("metadata endpoint is required")
	ErrMissingStoreID   = errors.New("metadata store ID is required")
	ErrMissingTimestamp = errors.New("metadata ingestion timestamp is required")
	ErrMissingHash      = errors.New("metadata content hash is required")
	ErrMissingPayload   = errors.New("envelope payload is required")
)

// BusinessDate is a calendar date serialized as "YYYY-MM-DD".
type BusinessDate struct {
	time.Time
}

// NewBusinessDate truncates t to its calendar date in UTC.
func NewBusinessDate(t time.Time) BusinessDate {
	year, month, day := t.Date()

	return BusinessDate{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON implements json.Marshaler.
func (d BusinessDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format("2006-01-02"))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *BusinessDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return fmt.Errorf("invalid business date %q: %w", s, err)
	}

	d.Time = parsed

	return nil
}

// Metadata is the provenance envelope stored with every ingested payload.
type Metadata struct {
	// Endpoint is the source API the payload came from.
	Endpoint string `json:"endpoint"`

	// BusinessDate is the operational date assigned by the source system.
	BusinessDate BusinessDate `json:"data_negocio"`

	// StoreID identifies the originating store.
	StoreID string `json:"id_loja"`

	// IngestionTimestamp is the UTC instant the record was written.
	IngestionTimestamp time.Time `json:"timestamp_ingestao"`

	// SchemaVersion is the registry version the payload was written under.
	SchemaVersion string `json:"versao_esquema"`

	// ContentHash is the hex digest of the payload's canonical JSON form.
	ContentHash string `json:"hash_dados"`

	// SizeBytes is the canonical payload size in bytes.
	SizeBytes int64 `json:"tamanho_bytes"`

	// SourceSystem names the system the payload was extracted from.
	SourceSystem string `json:"origem"`

	// OperatorID is the user or process that ran the ingestion.
	OperatorID string `json:"usuario"`
}

// Envelope is the complete stored record: provenance metadata plus the raw,
// unmodified payload as received from the originating API call.
type Envelope struct {
	Metadata Metadata        `json:"metadados"`
	Payload  json.RawMessage `json:"dados"`
}

// Validate checks the envelope's structural invariants before it is written
// or after it is read back.
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.Metadata.Endpoint) == "" {
		return ErrMissingEndpoint
	}

	if strings.TrimSpace(e.Metadata.StoreID) == "" {
		return ErrMissingStoreID
	}

	if e.Metadata.IngestionTimestamp.IsZero() {
		return ErrMissingTimestamp
	}

	if e.Metadata.ContentHash == "" {
		return ErrMissingHash
	}

	if len(e.Payload) == 0 {
		return ErrMissingPayload
	}

	return nil
}

// DecodedPayload unmarshals the raw payload for field-level inspection.
func (e *Envelope) DecodedPayload() (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	return payload, nil
}
