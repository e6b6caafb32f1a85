// Package digest computes the canonical SHA-256 content digest shared by
// artifact verification and HTTP caching validators.
//
// Canonicalization:
//  1. []byte passes through unchanged.
//  2. string is hashed as its UTF-8 bytes.
//  3. json.RawMessage is re-encoded with RFC 8785 (JCS).
//  4. Anything else is json.Marshal'ed, then JCS-encoded.
//
// Stored artifact content goes through CanonicalJSON instead, which never
// passes strings or bytes through raw: a JSON string artifact is hashed and
// served with its quotes.
//
// Verifying an artifact and serving it therefore yield the same digest for
// the same bytes.
package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the bytes that Sha256Hex hashes for v.
func Canonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return CanonicalJSON(v)
	}
}

// CanonicalJSON returns the RFC 8785 encoding of v as a JSON value.
func CanonicalJSON(v any) ([]byte, error) {
	raw, ok := v.(json.RawMessage)
	if ok {
		// top-level scalars are not whitespace tolerant in jcs
		raw = bytes.TrimSpace(raw)
	} else {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canonicalize: pre-marshal: %w", err)
		}
		raw = b
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// HashBytes is the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sha256Hex canonicalizes v and returns its SHA-256 hex digest.
func Sha256Hex(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// ETag returns the quoted digest of v, ready for the ETag header.
func ETag(v any) (string, error) {
	sum, err := Sha256Hex(v)
	if err != nil {
		return "", err
	}
	return Quote(sum), nil
}

func Quote(hexDigest string) string {
	return `"` + hexDigest + `"`
}
