package verify

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"

	"certified/internal/digest"
	"certified/internal/model"
)

// ErrArtifactNotFound is returned by an ArtifactSource for unknown ids.
var ErrArtifactNotFound = errors.New("artifact not found")

// Checker runs the underlying verification. A returned error is a backend
// failure (the check could not run); every verdict is an Outcome.
type Checker interface {
	Check(ctx context.Context, req model.VerifyRequest) (Outcome, error)
}

// ArtifactSource resolves stored, published artifacts.
type ArtifactSource interface {
	Artifact(ctx context.Context, id string) (model.Artifact, error)
}

// SignatureChecker verifies ed25519 signatures over artifact digests.
type SignatureChecker struct {
	PublicKey ed25519.PublicKey
	Artifacts ArtifactSource
}

// Check states: checking -> verified | not_found | invalid.
//
// An inline artifact is verified as sent. When an id is also given the id
// must exist and its stored digest must match the inline one. Without an
// inline artifact the stored content is verified, and the digest is reported
// by the checker itself.
func (c *SignatureChecker) Check(ctx context.Context, req model.VerifyRequest) (Outcome, error) {
	var stored *model.Artifact
	if req.ID != "" {
		if c.Artifacts == nil {
			return Outcome{Status: http.StatusNotFound}, nil
		}
		a, err := c.Artifacts.Artifact(ctx, req.ID)
		if errors.Is(err, ErrArtifactNotFound) {
			return Outcome{Status: http.StatusNotFound}, nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("load artifact %s: %w", req.ID, err)
		}
		stored = &a
	}

	var sum string
	if req.HasInlineArtifact() {
		s, err := digest.Sha256Hex(req.Artifact)
		if err != nil {
			return invalid("UNREADABLE_ARTIFACT"), nil
		}
		sum = s
		if stored != nil && stored.SHA256 != sum {
			return invalid("CONTENT_MISMATCH"), nil
		}
	} else if stored != nil {
		sum = stored.SHA256
	} else {
		return Outcome{Status: http.StatusBadRequest, Body: mustJSON(model.ErrorBody{
			Error: model.ErrorDetail{Code: model.CodeBadRequest, Message: "artifact or id required"},
		})}, nil
	}

	sig, err := DecodeSignature(req.Signature)
	if err != nil {
		return invalid("BAD_SIGNATURE_ENCODING"), nil
	}
	if !VerifyDigest(c.PublicKey, sum, sig) {
		return invalid("SIGNATURE_MISMATCH"), nil
	}

	if req.HasInlineArtifact() {
		// the shaper derives sha256 from the inline body
		return Outcome{Status: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
	}
	return Outcome{Status: http.StatusOK, Body: mustJSON(model.VerifyResult{OK: true, SHA256: sum})}, nil
}

func invalid(code string) Outcome {
	return Outcome{
		Status: http.StatusUnprocessableEntity,
		Body:   mustJSON(model.ErrorBody{Error: model.ErrorDetail{Code: code}}),
	}
}
