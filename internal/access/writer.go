package access

import "net/http"

// SendHook may adjust headers just before they are sent.
type SendHook func(h http.Header, status int)

// hookWriter runs the onSend hooks and finalize exactly once, on the first
// WriteHeader or Write. Anything that tries to hook in after that is a no-op.
type hookWriter struct {
	http.ResponseWriter
	req   *http.Request
	class Class
	hooks []SendHook
	sent  bool
}

func (w *hookWriter) WriteHeader(status int) {
	if w.sent {
		return
	}
	w.sent = true
	h := w.Header()
	for _, hook := range w.hooks {
		hook(h, status)
	}
	finalize(h, w.req, w.class, status)
	w.ResponseWriter.WriteHeader(status)
}

func (w *hookWriter) Write(b []byte) (int, error) {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *hookWriter) Flush() {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *hookWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// OnSend registers hook to run before headers are sent on w. It reports
// false and does nothing when w is not behind the pipeline or headers have
// already been sent.
func OnSend(w http.ResponseWriter, hook SendHook) bool {
	hw := findHookWriter(w)
	if hw == nil || hw.sent {
		return false
	}
	hw.hooks = append(hw.hooks, hook)
	return true
}

// HeadersSent reports whether the pipeline already flushed headers on w.
func HeadersSent(w http.ResponseWriter) bool {
	hw := findHookWriter(w)
	return hw != nil && hw.sent
}

func findHookWriter(w http.ResponseWriter) *hookWriter {
	for w != nil {
		if hw, ok := w.(*hookWriter); ok {
			return hw
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil
		}
		w = u.Unwrap()
	}
	return nil
}
