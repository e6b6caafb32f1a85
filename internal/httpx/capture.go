package httpx

import (
	"bytes"
	"net/http"
	"strings"
)

// Recorder is an in-memory http.ResponseWriter. It backs in-process
// re-dispatch, where a handler's full response must be inspected before
// anything reaches the real client.
type Recorder struct {
	header http.Header
	Status int
	Body   bytes.Buffer
	wrote  bool
}

func NewRecorder() *Recorder {
	return &Recorder{header: make(http.Header), Status: http.StatusOK}
}

func (r *Recorder) Header() http.Header { return r.header }

func (r *Recorder) WriteHeader(code int) {
	if r.wrote {
		return
	}
	r.Status = code
	r.wrote = true
}

func (r *Recorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.Body.Write(b)
}

// Dispatch runs h against req and returns everything it produced.
func Dispatch(h http.Handler, req *http.Request) *Recorder {
	rec := NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// IsJSON reports whether a Content-Type value names a JSON body.
func IsJSON(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == ContentTypeJSON || strings.HasSuffix(ct, "+json")
}
