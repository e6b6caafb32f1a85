package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Liveness probe
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Read a published artifact, or its detached signature when id ends in .sig
	// (GET, HEAD /api/certified/artifacts/{id})
	GetArtifact(w http.ResponseWriter, r *http.Request, id string)
	// Verify an artifact signature
	// (POST /api/certified/verify)
	VerifyArtifact(w http.ResponseWriter, r *http.Request)
	// List the latest version of every item
	// (GET /api/certified/items)
	ListItems(w http.ResponseWriter, r *http.Request)
	// Read the latest version of an item
	// (GET /api/certified/items/{id})
	GetItem(w http.ResponseWriter, r *http.Request, id string)
	// Create or update a draft item
	// (PUT /api/certified/items/{id})
	PutItem(w http.ResponseWriter, r *http.Request, id string)
	// Publish the current draft of an item
	// (POST /api/certified/items/{id}/publish)
	PublishItem(w http.ResponseWriter, r *http.Request, id string)
	// Record a source
	// (POST /api/certified/sources)
	CreateSource(w http.ResponseWriter, r *http.Request)
	// List log records in append order
	// (GET /api/certified/audit)
	ListAudit(w http.ResponseWriter, r *http.Request, params ListAuditParams)
}

// ListAuditParams defines parameters for ListAudit.
type ListAuditParams struct {
	// Kind restricts the listing to one record kind.
	Kind *string `form:"kind,omitempty" json:"kind,omitempty"`
}

// Unimplemented responds with 501 on every route. Embed it to implement
// ServerInterface piecemeal.
type Unimplemented struct{}

func (Unimplemented) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) GetArtifact(w http.ResponseWriter, r *http.Request, id string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) VerifyArtifact(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) ListItems(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) GetItem(w http.ResponseWriter, r *http.Request, id string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) PutItem(w http.ResponseWriter, r *http.Request, id string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) PublishItem(w http.ResponseWriter, r *http.Request, id string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) CreateSource(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) ListAudit(w http.ResponseWriter, r *http.Request, params ListAuditParams) {
	w.WriteHeader(http.StatusNotImplemented)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	handler := http.Handler(h)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return "", false
	}
	return id, true
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetHealth)
}

// GetArtifact operation middleware
func (siw *ServerInterfaceWrapper) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetArtifact(w, r, id)
	})
}

// VerifyArtifact operation middleware
func (siw *ServerInterfaceWrapper) VerifyArtifact(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.VerifyArtifact)
}

// ListItems operation middleware
func (siw *ServerInterfaceWrapper) ListItems(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ListItems)
}

// GetItem operation middleware
func (siw *ServerInterfaceWrapper) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetItem(w, r, id)
	})
}

// PutItem operation middleware
func (siw *ServerInterfaceWrapper) PutItem(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.PutItem(w, r, id)
	})
}

// PublishItem operation middleware
func (siw *ServerInterfaceWrapper) PublishItem(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.PublishItem(w, r, id)
	})
}

// CreateSource operation middleware
func (siw *ServerInterfaceWrapper) CreateSource(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateSource)
}

// ListAudit operation middleware
func (siw *ServerInterfaceWrapper) ListAudit(w http.ResponseWriter, r *http.Request) {
	var params ListAuditParams
	err := runtime.BindQueryParameter("form", true, false, "kind", r.URL.Query(), &params.Kind)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "kind", Err: err})
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListAudit(w, r, params)
	})
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the certified API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/certified/artifacts/{id}", wrapper.GetArtifact)
		r.Head(options.BaseURL+"/api/certified/artifacts/{id}", wrapper.GetArtifact)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/certified/verify", wrapper.VerifyArtifact)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/certified/items", wrapper.ListItems)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/certified/items/{id}", wrapper.GetItem)
	})
	r.Group(func(r chi.Router) {
		r.Put(options.BaseURL+"/api/certified/items/{id}", wrapper.PutItem)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/certified/items/{id}/publish", wrapper.PublishItem)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/certified/sources", wrapper.CreateSource)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/certified/audit", wrapper.ListAudit)
	})

	return r
}
