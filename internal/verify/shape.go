// Package verify implements the artifact verification protocol: a checker
// produces a raw outcome, and Shape normalizes it into exactly one of three
// wire shapes.
//
//	not found         404 {"error":{"code":"NOT_FOUND"}}   (upstream coded body passed through)
//	anything not 2xx  200 {"ok":false,"reason":"signature_invalid"}
//	2xx success       200 {"ok":true,"sha256":"<digest>"}
//
// HTTP status never signals a bad signature, only a bad request or a missing
// artifact.
package verify

import (
	"bytes"
	"encoding/json"
	"net/http"

	"certified/internal/digest"
	"certified/internal/httpx"
	"certified/internal/model"
)

// Outcome is whatever the underlying check answered, before shaping.
type Outcome struct {
	Status int
	Body   []byte
}

// Response is a shaped verify response.
type Response struct {
	Status int
	Body   []byte
}

// Shape maps a check outcome onto the verify wire protocol.
func Shape(req model.VerifyRequest, out Outcome) Response {
	switch {
	case out.Status == http.StatusNotFound:
		if httpx.ErrorCode(out.Body) != "" {
			return Response{Status: http.StatusNotFound, Body: out.Body}
		}
		return Response{Status: http.StatusNotFound, Body: mustJSON(model.ErrorBody{
			Error: model.ErrorDetail{Code: model.CodeNotFound},
		})}
	case out.Status >= http.StatusOK && out.Status < http.StatusMultipleChoices:
		return Response{Status: http.StatusOK, Body: successBody(req, out.Body)}
	default:
		// anything that is not a clear 2xx, zero and redirects included
		return Response{Status: http.StatusOK, Body: mustJSON(model.VerifyResult{
			OK:     false,
			Reason: model.ReasonSignatureInvalid,
		})}
	}
}

// successBody keeps the checker's fields, forces ok:true and injects the
// digest only when it is missing and an inline artifact was sent.
func successBody(req model.VerifyRequest, upstream []byte) []byte {
	body := map[string]any{}
	if len(bytes.TrimSpace(upstream)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(upstream))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil || body == nil {
			body = map[string]any{}
		}
	}
	body["ok"] = true
	delete(body, "reason")

	if sum, _ := body[model.FieldSHA256].(string); sum == "" {
		delete(body, model.FieldSHA256)
		if req.HasInlineArtifact() {
			if sum, err := digest.Sha256Hex(req.Artifact); err == nil {
				body[model.FieldSHA256] = sum
			}
		}
	}
	return mustJSON(body)
}

func mustJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return []byte(`{"error":{"code":"INTERNAL"}}`)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}
