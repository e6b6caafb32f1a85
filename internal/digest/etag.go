package digest

import (
	"net/http"
	"strconv"
	"strings"

	"certified/internal/httpx"
)

// ETagMiddleware buffers successful GET and HEAD responses and derives an
// ETag from the body when the handler did not set one. A matching
// If-None-Match turns the response into 304 Not Modified. HEAD gets the GET
// headers, Content-Length included, and no body.
func ETagMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		rec := httpx.Dispatch(next, r)
		for k, vs := range rec.Header() {
			w.Header()[k] = vs
		}

		body := rec.Body.Bytes()
		if rec.Status == http.StatusOK {
			if w.Header().Get("ETag") == "" {
				w.Header().Set("ETag", Quote(HashBytes(body)))
			}
			if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, w.Header().Get("ETag")) {
				w.Header().Del("Content-Length")
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(rec.Status)
			return
		}
		w.WriteHeader(rec.Status)
		_, _ = w.Write(body)
	})
}

func etagMatches(ifNoneMatch, etag string) bool {
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
