// Package access partitions the certified HTTP surface into public, admin
// and other routes and applies each partition's headers and gate in a
// fixed order: classify, preflight, baseline, gate, handler, finalize.
package access

import "strings"

// Class is the access partition of a request path.
type Class int

const (
	ClassOther Class = iota
	ClassPublic
	ClassAdmin
)

func (c Class) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassAdmin:
		return "admin"
	default:
		return "other"
	}
}

// Certified reports whether c is part of the certified surface.
func (c Class) Certified() bool {
	return c == ClassPublic || c == ClassAdmin
}

const (
	APIPrefix       = "/api/certified"
	LegacyPrefix    = "/certified"
	ArtifactsPrefix = APIPrefix + "/artifacts/"
	VerifyPath      = APIPrefix + "/verify"
	SignatureSuffix = ".sig"
)

// Classify maps a URL path to its partition. First match wins: public
// artifact reads and verify, then anything else under the API prefix.
// Legacy paths classify as their canonical form.
func Classify(path string) Class {
	p := Canonical(path)
	switch {
	case strings.HasPrefix(p, ArtifactsPrefix), p == VerifyPath:
		return ClassPublic
	case underPrefix(p, APIPrefix):
		return ClassAdmin
	default:
		return ClassOther
	}
}

// Recognized reports whether path is under the canonical or legacy prefix.
func Recognized(path string) bool {
	return underPrefix(path, APIPrefix) || underPrefix(path, LegacyPrefix)
}

// IsLegacy reports whether path uses the legacy /certified shape.
func IsLegacy(path string) bool {
	return underPrefix(path, LegacyPrefix)
}

// Canonical rewrites a legacy path to its /api/certified form. Other paths
// are returned unchanged.
func Canonical(path string) string {
	if !IsLegacy(path) {
		return path
	}
	return APIPrefix + strings.TrimPrefix(path, LegacyPrefix)
}

// IsSignatureRead reports whether path is a detached signature read.
func IsSignatureRead(path string) bool {
	p := Canonical(path)
	return strings.HasPrefix(p, ArtifactsPrefix) && strings.HasSuffix(p, SignatureSuffix)
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
