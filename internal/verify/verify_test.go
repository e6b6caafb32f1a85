package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"certified/internal/digest"
	"certified/internal/model"
)

type fakeArtifacts map[string]model.Artifact

func (f fakeArtifacts) Artifact(_ context.Context, id string) (model.Artifact, error) {
	a, ok := f[id]
	if !ok {
		return model.Artifact{}, ErrArtifactNotFound
	}
	return a, nil
}

type stubChecker struct {
	out   Outcome
	err   error
	calls int
}

func (s *stubChecker) Check(context.Context, model.VerifyRequest) (Outcome, error) {
	s.calls++
	return s.out, s.err
}

func TestShape(t *testing.T) {
	inline := model.VerifyRequest{Artifact: json.RawMessage(`{"b":2,"a":1}`), Signature: "x"}
	inlineSum, err := digest.Sha256Hex(inline.Artifact)
	require.NoError(t, err)

	cases := []struct {
		name       string
		req        model.VerifyRequest
		out        Outcome
		wantStatus int
		wantBody   string
	}{
		{"bare not found", inline, Outcome{Status: 404}, 404, `{"error":{"code":"NOT_FOUND"}}`},
		{"coded not found passes through", inline, Outcome{Status: 404, Body: []byte(`{"error":{"code":"ITEM_GONE","message":"x"}}`)}, 404, `{"error":{"code":"ITEM_GONE","message":"x"}}`},
		{"uncoded not found body is replaced", inline, Outcome{Status: 404, Body: []byte(`{"message":"nope"}`)}, 404, `{"error":{"code":"NOT_FOUND"}}`},
		{"4xx becomes signature_invalid", inline, Outcome{Status: 422, Body: []byte(`{"error":{"code":"SIGNATURE_MISMATCH"}}`)}, 200, `{"ok":false,"reason":"signature_invalid"}`},
		{"400 becomes signature_invalid", inline, Outcome{Status: 400}, 200, `{"ok":false,"reason":"signature_invalid"}`},
		{"5xx becomes signature_invalid", inline, Outcome{Status: 502, Body: []byte("upstream down")}, 200, `{"ok":false,"reason":"signature_invalid"}`},
		{"success gets lazy digest", inline, Outcome{Status: 200, Body: []byte(`{"ok":true}`)}, 200, `{"ok":true,"sha256":"` + inlineSum + `"}`},
		{"existing digest is kept", inline, Outcome{Status: 200, Body: []byte(`{"ok":true,"sha256":"precomputed"}`)}, 200, `{"ok":true,"sha256":"precomputed"}`},
		{"no inline artifact, no injection", model.VerifyRequest{ID: "a1", Signature: "x"}, Outcome{Status: 200}, 200, `{"ok":true}`},
		{"empty success body", inline, Outcome{Status: 204}, 200, `{"ok":true,"sha256":"` + inlineSum + `"}`},
		{"zero status is not success", inline, Outcome{}, 200, `{"ok":false,"reason":"signature_invalid"}`},
		{"redirect is not success", inline, Outcome{Status: 302, Body: []byte(`{"ok":true}`)}, 200, `{"ok":false,"reason":"signature_invalid"}`},
		{"not modified is not success", inline, Outcome{Status: 304}, 200, `{"ok":false,"reason":"signature_invalid"}`},
		{"500 becomes signature_invalid", inline, Outcome{Status: 500}, 200, `{"ok":false,"reason":"signature_invalid"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := Shape(tc.req, tc.out)
			assert.Equal(t, tc.wantStatus, resp.Status)
			assert.JSONEq(t, tc.wantBody, string(resp.Body))
		})
	}
}

func TestShapePassThroughIsByteIdentical(t *testing.T) {
	upstream := []byte(`{"error": {"code": "NOT_FOUND", "message": "artifact a1"}}`)
	resp := Shape(model.VerifyRequest{}, Outcome{Status: 404, Body: upstream})
	assert.Equal(t, upstream, resp.Body, "a coded body must not be re-wrapped or re-encoded")
}

func newFixture(t *testing.T) (*Signer, *Handler, json.RawMessage, []byte) {
	t.Helper()
	signer, err := GenerateSigner()
	require.NoError(t, err)

	content := json.RawMessage(`{"id":"art_1","title":"Linear equations","modules":[1,2,3]}`)
	sum, sig, err := signer.Sign(content)
	require.NoError(t, err)
	canon, err := digest.Canonical(content)
	require.NoError(t, err)

	store := fakeArtifacts{"art_1": {ID: "art_1", Content: canon, SHA256: sum, Signature: sig}}
	h, err := NewHandler(&SignatureChecker{PublicKey: signer.PublicKey(), Artifacts: store}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return signer, h, content, sig
}

func postVerify(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/certified/verify", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) model.VerifyResult {
	t.Helper()
	var res model.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestHandlerVerifiesInlineArtifact(t *testing.T) {
	_, h, content, sig := newFixture(t)

	rec := postVerify(t, h, model.VerifyRequest{Artifact: content, Signature: base64.StdEncoding.EncodeToString(sig)})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.True(t, res.OK)
	want, _ := digest.Sha256Hex(content)
	assert.Equal(t, want, res.SHA256)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHandlerVerifiesStoredArtifactByID(t *testing.T) {
	_, h, content, sig := newFixture(t)

	rec := postVerify(t, h, model.VerifyRequest{ID: "art_1", Signature: base64.StdEncoding.EncodeToString(sig)})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.True(t, res.OK)
	want, _ := digest.Sha256Hex(content)
	assert.Equal(t, want, res.SHA256)
}

func TestHandlerTamperedSignatureIsAlways200(t *testing.T) {
	_, h, content, sig := newFixture(t)

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xff
	tamperedContent := json.RawMessage(`{"id":"art_1","title":"Linear equations!","modules":[1,2,3]}`)

	bodies := []model.VerifyRequest{
		{Artifact: content, Signature: base64.StdEncoding.EncodeToString(tampered)},
		{Artifact: tamperedContent, Signature: base64.StdEncoding.EncodeToString(sig)},
		{ID: "art_1", Artifact: tamperedContent, Signature: base64.StdEncoding.EncodeToString(sig)},
		{Artifact: content, Signature: "!!not-a-signature!!"},
		{ID: "art_1", Signature: base64.StdEncoding.EncodeToString(tampered)},
	}
	for i, body := range bodies {
		rec := postVerify(t, h, body)
		require.Equalf(t, http.StatusOK, rec.Code, "case %d", i)
		assert.JSONEqf(t, `{"ok":false,"reason":"signature_invalid"}`, rec.Body.String(), "case %d", i)
	}
}

func TestHandlerUnknownIDIs404Once(t *testing.T) {
	_, h, content, sig := newFixture(t)

	rec := postVerify(t, h, model.VerifyRequest{ID: "missing", Artifact: content, Signature: base64.StdEncoding.EncodeToString(sig)})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND"}}`, rec.Body.String())
}

func TestHandlerRequestShapeErrors(t *testing.T) {
	checker := &stubChecker{out: Outcome{Status: 200}}
	h, err := NewHandler(checker, nil)
	require.NoError(t, err)

	for name, body := range map[string]string{
		"malformed json":    `{"artifact":`,
		"missing signature": `{"artifact":{"a":1}}`,
		"missing artifact":  `{"signature":"abc"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/certified/verify", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), model.CodeBadRequest)
		})
	}
	assert.Zero(t, checker.calls, "request-shape errors must never reach the checker")
}

func TestHandlerBackendFailureIs500(t *testing.T) {
	h, err := NewHandler(&stubChecker{err: errors.New("disk on fire")}, zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := postVerify(t, h, model.VerifyRequest{ID: "a", Signature: "abc"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestSignerRoundTripAndEncodings(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	again, err := NewSignerFromSeedHex(signer.SeedHex())
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKeyHex(), again.PublicKeyHex())

	sum, sig, err := signer.Sign(map[string]any{"z": 1, "a": 2})
	require.NoError(t, err)
	assert.True(t, VerifyDigest(again.PublicKey(), sum, sig))

	for _, enc := range []string{
		base64.StdEncoding.EncodeToString(sig),
		base64.RawURLEncoding.EncodeToString(sig),
	} {
		decoded, err := DecodeSignature(enc)
		require.NoError(t, err)
		assert.Equal(t, sig, decoded)
	}

	_, err = NewSignerFromSeedHex("abcd")
	assert.Error(t, err)
}
