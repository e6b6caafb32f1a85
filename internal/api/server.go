package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"certified/internal/access"
	"certified/internal/alias"
	"certified/internal/digest"
	"certified/internal/httpx"
	"certified/internal/model"
	"certified/internal/publish"
	"certified/internal/verify"
)

// LogReader is the read side of the content log.
type LogReader interface {
	List(kind model.Kind) ([]model.Record, error)
}

type Deps struct {
	Log     LogReader
	Service *publish.Service
	Checker verify.Checker
	Access  access.Config
	Logger  *zap.Logger
}

// Server implements ServerInterface on top of the content log.
type Server struct {
	log       LogReader
	service   *publish.Service
	verifier  http.Handler
	publisher http.Handler
	logger    *zap.Logger
}

var _ ServerInterface = (*Server)(nil)

// NewServer wires the certified routes behind request ids, request logging
// and the access pipeline, and mounts the legacy /certified alias.
func NewServer(deps Deps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	verifier, err := verify.NewHandler(deps.Checker, logger)
	if err != nil {
		return nil, err
	}
	if deps.Access.Logger == nil {
		deps.Access.Logger = logger
	}

	s := &Server{
		log:       deps.Log,
		service:   deps.Service,
		verifier:  verifier,
		publisher: &publish.Guard{Canonical: publish.NewCanonicalHandler(deps.Service, logger)},
		logger:    logger,
	}

	routes := chi.NewRouter()
	routes.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteCode(w, http.StatusNotFound, model.CodeNotFound, "")
	})
	routes.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.MethodNotAllowed(w)
	})
	HandlerWithOptions(s, ChiServerOptions{
		BaseRouter: routes,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, err.Error())
		},
	})

	root := chi.NewRouter()
	pipeline := access.New(deps.Access)
	root.Use(pipeline.Preflight, httpx.RequestID, httpx.Logging(logger), pipeline.Middleware)
	forwarder := alias.New(freshRoute(routes), logger)
	root.Handle(access.LegacyPrefix, forwarder)
	root.Handle(access.LegacyPrefix+"/*", forwarder)
	root.Mount("/", routes)
	return root, nil
}

// freshRoute dispatches as a new top-level request so route params from the
// legacy match do not leak into the canonical one.
func freshRoute(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), chi.RouteCtxKey, (*chi.Context)(nil))
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetArtifact(w http.ResponseWriter, r *http.Request, id string) {
	digest.ETagMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.serveArtifact(w, r, id)
	})).ServeHTTP(w, r)
}

// serveArtifact writes the canonical bytes so the ETag digest and the
// verify digest are computed over the same input.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, id string) {
	artifactID, sigRead := strings.CutSuffix(id, access.SignatureSuffix)
	art, err := s.service.Artifact(r.Context(), artifactID)
	if errors.Is(err, verify.ErrArtifactNotFound) {
		httpx.WriteCode(w, http.StatusNotFound, model.CodeNotFound, "")
		return
	}
	if err != nil {
		httpx.WriteError(w, r, s.logger, http.StatusInternalServerError, model.CodeInternal, err)
		return
	}
	if sigRead {
		w.Header().Set("Content-Type", httpx.ContentTypeOctetStream)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(art.Signature)
		return
	}
	httpx.WriteRawJSON(w, http.StatusOK, art.Content)
}

func (s *Server) VerifyArtifact(w http.ResponseWriter, r *http.Request) {
	s.verifier.ServeHTTP(w, r)
}

func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Items(r.Context())
	if err != nil {
		httpx.WriteError(w, r, s.logger, http.StatusInternalServerError, model.CodeInternal, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) GetItem(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.service.Item(r.Context(), id)
	if err != nil {
		publish.WriteServiceError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (s *Server) PutItem(w http.ResponseWriter, r *http.Request, id string) {
	var req model.UpsertItemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)).Decode(&req); err != nil {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, "malformed item body")
		return
	}
	item, err := s.service.Upsert(r.Context(), id, req.LockHash, req.Content)
	if err != nil {
		publish.WriteServiceError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (s *Server) PublishItem(w http.ResponseWriter, r *http.Request, id string) {
	s.publisher.ServeHTTP(w, r)
}

func (s *Server) CreateSource(w http.ResponseWriter, r *http.Request) {
	var data model.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)).Decode(&data); err != nil || data == nil {
		httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, "source body must be a JSON object")
		return
	}
	src, err := s.service.AddSource(r.Context(), data)
	if err != nil {
		httpx.WriteError(w, r, s.logger, http.StatusInternalServerError, model.CodeInternal, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, src)
}

func (s *Server) ListAudit(w http.ResponseWriter, r *http.Request, params ListAuditParams) {
	var kind model.Kind
	if params.Kind != nil && *params.Kind != "" {
		k, err := model.ParseKind(*params.Kind)
		if err != nil {
			httpx.WriteCode(w, http.StatusBadRequest, model.CodeBadRequest, err.Error())
			return
		}
		kind = k
	}
	records, err := s.log.List(kind)
	if err != nil {
		httpx.WriteError(w, r, s.logger, http.StatusInternalServerError, model.CodeInternal, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, records)
}
