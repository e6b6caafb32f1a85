package access

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"certified/internal/httpx"
	"certified/internal/model"
	"certified/internal/ratelimit"
	"certified/internal/session"
)

const (
	headerACAO = "Access-Control-Allow-Origin"
	headerACAC = "Access-Control-Allow-Credentials"
	headerCORP = "Cross-Origin-Resource-Policy"
	headerCOOP = "Cross-Origin-Opener-Policy"

	ArtifactCacheControl = "public, max-age=300, must-revalidate"

	corsAllowMethods = "GET, HEAD, POST, PUT, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, If-None-Match, X-Request-ID"
)

type Config struct {
	Sessions session.Resolver
	// DevBypass lets any session through the admin gate.
	DevBypass bool
	// PreviewMode serves certified page paths outside the API with
	// Cross-Origin-Resource-Policy: cross-origin.
	PreviewMode bool
	// Limiter throttles the certified surface; nil disables throttling.
	Limiter ratelimit.Limiter
	// ClientKey identifies the caller for rate limiting. Defaults to the
	// remote IP.
	ClientKey func(*http.Request) string
	Logger    *zap.Logger
}

type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ClientKey == nil {
		cfg.ClientKey = RemoteIP
	}
	return &Pipeline{cfg: cfg}
}

// Preflight answers OPTIONS on the certified prefixes with 204 and the CORS
// headers only. Install it ahead of any middleware that adds headers of its
// own; Middleware repeats the check for chains without it.
func (p *Pipeline) Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware runs the stages around next.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := Classify(r.URL.Path)

		if preflight(w, r) {
			return
		}

		p.baseline(w.Header(), r.URL.Path, class)

		if class == ClassAdmin && !p.gate(w, r) {
			return
		}
		if class.Certified() && !p.allow(w, r, class) {
			return
		}

		hw := &hookWriter{ResponseWriter: w, req: r, class: class}
		next.ServeHTTP(hw, r)
		if !hw.sent {
			// empty responses still pass through finalize
			hw.WriteHeader(http.StatusOK)
		}
	})
}

func (p *Pipeline) baseline(h http.Header, path string, class Class) {
	h.Set("Referrer-Policy", "no-referrer")
	h.Set(headerCOOP, "same-origin")
	h.Set("X-Content-Type-Options", "nosniff")
	switch {
	case class.Certified():
		h.Set(headerCORP, "same-origin")
		h.Set(headerACAO, "*")
		h.Del(headerACAC)
	case p.cfg.PreviewMode && strings.Contains(path, LegacyPrefix):
		h.Set(headerCORP, "cross-origin")
	default:
		h.Set(headerCORP, "same-site")
	}
}

// gate writes 401 without a session and 403 without admin rights.
func (p *Pipeline) gate(w http.ResponseWriter, r *http.Request) bool {
	var s session.Session
	if p.cfg.Sessions != nil {
		s = p.cfg.Sessions.Resolve(r)
	}
	if !s.Present {
		httpx.WriteCode(w, http.StatusUnauthorized, model.CodeUnauthorized, "session required")
		return false
	}
	if !s.Admin && !p.cfg.DevBypass {
		httpx.RequestLogger(p.cfg.Logger, r).Info("admin gate denied", zap.String("subject", s.Subject))
		httpx.WriteCode(w, http.StatusForbidden, model.CodeForbidden, "admin access required")
		return false
	}
	return true
}

// allow fails open when the limiter itself errors.
func (p *Pipeline) allow(w http.ResponseWriter, r *http.Request, class Class) bool {
	if p.cfg.Limiter == nil {
		return true
	}
	ok, err := p.cfg.Limiter.Allow(r.Context(), class.String()+":"+p.cfg.ClientKey(r))
	if err != nil {
		httpx.RequestLogger(p.cfg.Logger, r).Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", "1")
		httpx.WriteCode(w, http.StatusTooManyRequests, model.CodeRateLimited, "too many requests")
		return false
	}
	return true
}

// finalize re-asserts the certified invariants just before headers go out.
// It runs after every OnSend hook so no earlier hook can weaken them.
func finalize(h http.Header, r *http.Request, class Class, status int) {
	if !class.Certified() {
		return
	}
	h.Set(headerCORP, "same-origin")
	h.Set(headerACAO, "*")
	h.Del(headerACAC)

	if class != ClassPublic {
		return
	}
	if cacheable(r, h, status) {
		if h.Get("Cache-Control") == "" {
			h.Set("Cache-Control", ArtifactCacheControl)
		}
		return
	}
	h.Del("Cache-Control")
}

func cacheable(r *http.Request, h http.Header, status int) bool {
	if status != http.StatusOK {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	p := Canonical(r.URL.Path)
	if !strings.HasPrefix(p, ArtifactsPrefix) || IsSignatureRead(p) {
		return false
	}
	return httpx.IsJSON(h.Get("Content-Type"))
}

func preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions || !Recognized(r.URL.Path) {
		return false
	}
	writeCORS(w.Header())
	w.WriteHeader(http.StatusNoContent)
	return true
}

func writeCORS(h http.Header) {
	h.Set(headerACAO, "*")
	h.Del(headerACAC)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Max-Age", "600")
}

// RemoteIP is the default rate-limit key.
func RemoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return ip
}
