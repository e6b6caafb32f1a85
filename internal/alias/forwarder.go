// Package alias serves the legacy /certified/... URL shape by re-dispatching
// to the canonical /api/certified/... handler in process and relaying its
// response.
package alias

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"certified/internal/access"
	"certified/internal/httpx"
	"certified/internal/model"
)

// mirrored are the canonical response headers copied onto the alias response.
var mirrored = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Credentials",
	"ETag",
	"Cache-Control",
	"Location",
	"Content-Type",
}

// Forwarder relays legacy requests to Target. It never produces a response
// of its own except 502 when the canonical JSON body cannot be re-read.
type Forwarder struct {
	Target http.Handler
	Logger *zap.Logger
}

func New(target http.Handler, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{Target: target, Logger: logger}
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fwd := r.Clone(r.Context())
	fwd.URL.Path = access.Canonical(r.URL.Path)
	fwd.URL.RawPath = ""
	fwd.RequestURI = fwd.URL.RequestURI()
	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes))
		if err != nil {
			httpx.WriteCode(w, http.StatusRequestEntityTooLarge, model.CodeBadRequest, "request body too large")
			return
		}
		fwd.Body = io.NopCloser(bytes.NewReader(body))
		fwd.ContentLength = int64(len(body))
	}

	rec := httpx.Dispatch(f.Target, fwd)

	body := rec.Body.Bytes()
	if httpx.IsJSON(rec.Header().Get("Content-Type")) && len(bytes.TrimSpace(body)) > 0 {
		fresh, err := reserialize(body)
		if err != nil {
			httpx.WriteError(w, r, f.Logger, http.StatusBadGateway, model.CodeBadGateway, err)
			return
		}
		body = fresh
	}

	for _, name := range mirrored {
		if v := rec.Header().Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if r.Method == http.MethodHead {
		if v := rec.Header().Get("Content-Length"); v != "" {
			w.Header().Set("Content-Length", v)
		}
		w.WriteHeader(rec.Status)
		return
	}
	if rec.Status != http.StatusNoContent && rec.Status != http.StatusNotModified {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(rec.Status)
	_, _ = w.Write(body)
}

// reserialize parses body and encodes it again with the same numbers and
// no HTML escaping.
func reserialize(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
