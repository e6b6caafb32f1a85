package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"certified/internal/httpx"
	"certified/internal/model"
)

// Publisher is what the canonical handler drives.
type Publisher interface {
	Publish(ctx context.Context, id, lockHash string) (model.Document, error)
}

// CanonicalHandler serves POST /api/certified/items/{id}/publish.
type CanonicalHandler struct {
	Publisher Publisher
	Logger    *zap.Logger
	// PathID extracts the item id; chi's {id} param by default.
	PathID func(*http.Request) string
}

func NewCanonicalHandler(p Publisher, logger *zap.Logger) *CanonicalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanonicalHandler{Publisher: p, Logger: logger}
}

func (h *CanonicalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w)
		return
	}
	id := h.pathID(r)
	if id == "" {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, "item id required")
		return
	}

	req, _ := readPublishRequest(w, r)
	item, err := h.Publisher.Publish(r.Context(), id, req.Hash())
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (h *CanonicalHandler) pathID(r *http.Request) string {
	if h.PathID != nil {
		return h.PathID(r)
	}
	return chi.URLParam(r, "id")
}

// Guard rejects publish requests that carry no lock hash and forwards the
// rest to the canonical handler, mirroring its status, Location and body.
type Guard struct {
	Canonical http.Handler
}

func (g *Guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w)
		return
	}
	req, raw := readPublishRequest(w, r)
	if req.Hash() == "" {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeNoLockHash, "lockHash is required to publish")
		return
	}

	fwd := r.Clone(r.Context())
	fwd.Body = io.NopCloser(bytes.NewReader(raw))
	fwd.ContentLength = int64(len(raw))
	rec := httpx.Dispatch(g.Canonical, fwd)

	if ct := rec.Header().Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		w.Header().Set("Location", loc)
	}
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body.Bytes())
}

// readPublishRequest decodes the body leniently; an unreadable or non-JSON
// body counts as a request without a lock hash.
func readPublishRequest(w http.ResponseWriter, r *http.Request) (model.PublishRequest, []byte) {
	var req model.PublishRequest
	if r.Body == nil {
		return req, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes))
	if err != nil {
		return req, nil
	}
	_ = json.Unmarshal(raw, &req)
	return req, raw
}

// WriteServiceError maps service errors onto the HTTP error taxonomy.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var conflict *ConflictError
	switch {
	case errors.Is(err, ErrNoLockHash):
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeNoLockHash, "lockHash is required to publish")
	case errors.As(err, &conflict):
		w.Header().Set("Location", conflict.Location())
		httpx.WriteCode(w, http.StatusConflict, model.CodeLockConflict, "lock hash is stale; reload the item")
	case errors.Is(err, ErrNotFound):
		httpx.WriteCode(w, http.StatusNotFound, model.CodeNotFound, "")
	case errors.Is(err, ErrNoContent):
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, err.Error())
	default:
		httpx.WriteError(w, r, logger, http.StatusInternalServerError, model.CodeInternal, err)
	}
}
