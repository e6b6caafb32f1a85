package model

import "encoding/json"

// ErrorBody is the structured error shape used on every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeNoLockHash       = "NO_LOCK_HASH"
	CodeLockConflict     = "LOCK_CONFLICT"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL"
	CodeBadGateway       = "BAD_GATEWAY"
)

// VerifyRequest is the body of POST /api/certified/verify. Artifact is the
// inline artifact; when it is absent ID names a stored artifact instead.
type VerifyRequest struct {
	ID        string          `json:"id,omitempty"`
	Artifact  json.RawMessage `json:"artifact,omitempty"`
	Signature string          `json:"signature"`
}

// HasInlineArtifact reports whether the request carried an artifact body.
func (r VerifyRequest) HasInlineArtifact() bool {
	return len(r.Artifact) > 0 && string(r.Artifact) != "null"
}

// VerifyResult is the success/failure wire shape of the verify endpoint.
type VerifyResult struct {
	OK     bool   `json:"ok"`
	SHA256 string `json:"sha256,omitempty"`
	Reason string `json:"reason,omitempty"`
}

const ReasonSignatureInvalid = "signature_invalid"

// PublishRequest is the body of a publish mutation. Both spellings of the
// lock hash field are accepted.
type PublishRequest struct {
	LockHash       string `json:"lockHash,omitempty"`
	LegacyLockHash string `json:"lock_hash,omitempty"`
}

func (p PublishRequest) Hash() string {
	if p.LockHash != "" {
		return p.LockHash
	}
	return p.LegacyLockHash
}

// UpsertItemRequest is the body of PUT /api/certified/items/{id}.
type UpsertItemRequest struct {
	LockHash string          `json:"lockHash,omitempty"`
	Content  json.RawMessage `json:"content"`
}
