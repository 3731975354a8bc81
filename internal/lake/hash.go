// Package lake provides the payload writer and reader for the partitioned
// raw-data lake, plus the metadata envelope stored with every record.
package lake

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Content hash algorithms. The digest length disambiguates them on read:
// sha256 digests are 64 hex characters, blake2b-512 digests are 128.
const (
	HashSHA256  = "sha256"
	HashBlake2b = "blake2b"

	sha256HexLen  = sha256.Size * 2
	blake2bHexLen = blake2b.Size * 2
)

var (
	// ErrUnknownHashAlgorithm is returned for an unsupported algorithm name.
	ErrUnknownHashAlgorithm = errors.New("unknown hash algorithm")

	// ErrIntegrityMismatch indicates a stored content hash that does not match
	// the payload read back from disk. Surfaced, never silently ignored.
	ErrIntegrityMismatch = errors.New("content hash mismatch")
)

// Hasher computes deterministic content hashes of decoded JSON payloads.
type Hasher struct {
	algorithm string
}

// NewHasher creates a hasher for the given algorithm (HashSHA256 or
// HashBlake2b).
func NewHasher(algorithm string) (*Hasher, error) {
	switch algorithm {
	case HashSHA256, HashBlake2b:
		return &Hasher{algorithm: algorithm}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHashAlgorithm, algorithm)
	}
}

// Sum returns the hex digest of the payload's canonical JSON form.
//
// Canonicalization goes through encoding/json, which emits map keys in sorted
// order: two payloads with the same fields and values hash identically no
// matter the key order or whitespace they arrived with.
func (h *Hasher) Sum(payload any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	switch h.algorithm {
	case HashBlake2b:
		digest := blake2b.Sum512(canonical)

		return hex.EncodeToString(digest[:]), nil
	default:
		digest := sha256.Sum256(canonical)

		return hex.EncodeToString(digest[:]), nil
	}
}

// Verify recomputes the payload's hash and compares it against the stored
// digest, picking the algorithm by digest length so a lake written under
// either algorithm verifies correctly.
//
// Returns ErrIntegrityMismatch when the digests differ.
func Verify(payload any, storedHex string) error {
	var algorithm string

	switch len(storedHex) {
	case sha256HexLen:
		algorithm = HashSHA256
	case blake2bHexLen:
		algorithm = HashBlake2b
	default:
		return fmt.Errorf("%w: unrecognized digest length %d", ErrIntegrityMismatch, len(storedHex))
	}

	hasher, err := NewHasher(algorithm)
	if err != nil {
		return err
	}

	computed, err := hasher.Sum(payload)
	if err != nil {
		return err
	}

	if computed != storedHex {
		return fmt.Errorf("%w: stored %s, computed %s", ErrIntegrityMismatch, storedHex, computed)
	}

	return nil
}
