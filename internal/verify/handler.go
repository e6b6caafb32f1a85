package verify

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"certified/internal/httpx"
	"certified/internal/model"
)

// Handler serves POST /api/certified/verify.
type Handler struct {
	Checker Checker
	Logger  *zap.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// wildcard origin, never credentials
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Del("Access-Control-Allow-Credentials")

	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)
	var req model.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, "malformed verify request")
		return
	}
	if req.Signature == "" {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, "signature required")
		return
	}
	if !req.HasInlineArtifact() && req.ID == "" {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, "artifact or id required")
		return
	}

	out, err := h.Checker.Check(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, http.StatusInternalServerError, model.CodeInternal, err)
		return
	}

	resp := Shape(req, out)
	httpx.RequestLogger(h.Logger, r).Debug("verify",
		zap.Int("upstream_status", out.Status),
		zap.Int("status", resp.Status),
		zap.Bool("inline", req.HasInlineArtifact()),
	)
	httpx.WriteRawJSON(w, resp.Status, resp.Body)
}

// ErrNoChecker is returned by NewHandler when no checker is supplied.
var ErrNoChecker = errors.New("verify: nil checker")

func NewHandler(c Checker, logger *zap.Logger) (*Handler, error) {
	if c == nil {
		return nil, ErrNoChecker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Checker: c, Logger: logger}, nil
}
