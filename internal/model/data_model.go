package model

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindSource Kind = "source"
	KindItem   Kind = "item"
	KindAudit  Kind = "audit"
)

// Valid reports whether k is one of the three record kinds the log accepts.
func (k Kind) Valid() bool {
	switch k {
	case KindSource, KindItem, KindAudit:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown record kind %q", s)
	}
	return k, nil
}

// Record is one line of the content log. Records are never edited; a
// correction is a new record.
//
//	{"seq":12,"kind":"item","ts":"2026-01-02T15:04:05.123Z","data":{...},"crc":"9a3f01c2"}
//
// crc is CRC32C over the canonical encoding of data, hex encoded.
type Record struct {
	Seq  uint64    `json:"seq"`
	Kind Kind      `json:"kind"`
	TS   time.Time `json:"ts"`
	Data Document  `json:"data"`
	CRC  string    `json:"crc"`
}

// Document is the free-form JSON object carried by a record.
type Document map[string]any

// ID returns data.id, or "" when absent or not a string.
func (d Document) ID() string {
	return d.String("id")
}

func (d Document) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy so callers can add fields without touching
// a record that came out of the log.
func (d Document) Clone() Document {
	out := make(Document, len(d)+4)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Item statuses.
const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
)

// Item document fields.
const (
	FieldID        = "id"
	FieldStatus    = "status"
	FieldLockHash  = "lockHash"
	FieldContent   = "content"
	FieldSHA256    = "sha256"
	FieldSignature = "signature"
)

// Artifact is the certified projection of a published item: its canonical
// JSON content, the digest of that content and the detached signature.
type Artifact struct {
	ID        string
	Content   []byte
	SHA256    string
	Signature []byte
}
