// Package httpapi serves the catalog's JSON REST API under /api/v1.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"labcatalog/internal/auth"
	"labcatalog/internal/core"
	"labcatalog/internal/observability"
	"labcatalog/pkg/domain"
)

const (
	// Prefix is the path prefix of every API route.
	Prefix = "/api/v1"

	maxBodyBytes = 1 << 20

	defaultItemsPerPage = 20
	defaultMaxPageSize  = 1000
)

// Options configures a Server.
type Options struct {
	ItemsPerPage int
	MaxPageSize  int
	Logger       *zap.Logger
	// Auth identifies callers. When nil no caller holds the admin
	// entitlement.
	Auth *auth.Authenticator
	// Metrics instruments the routes. Optional.
	Metrics *observability.HTTPMetrics
	// Gatherer backs /metrics. When nil the route is not registered.
	Gatherer prometheus.Gatherer
}

// Server binds the catalog service to HTTP routes.
type Server struct {
	svc     *core.Service
	opts    Options
	log     *zap.Logger
	auth    *auth.Authenticator
	decoder *schema.Decoder
}

// New returns a server for svc.
func New(svc *core.Service, opts Options) *Server {
	if opts.ItemsPerPage < 1 {
		opts.ItemsPerPage = defaultItemsPerPage
	}
	if opts.MaxPageSize < opts.ItemsPerPage {
		opts.MaxPageSize = max(defaultMaxPageSize, opts.ItemsPerPage)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	authn := opts.Auth
	if authn == nil {
		authn = auth.New(auth.Config{}, log)
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Server{svc: svc, opts: opts, log: log, auth: authn, decoder: decoder}
}

// Handler returns a router serving the API, /healthz and /metrics.
func (s *Server) Handler() *mux.Router {
	root := mux.NewRouter()
	s.Register(root)
	return root
}

// Register installs the middleware chain and every route on root.
func (s *Server) Register(root *mux.Router) {
	if s.opts.Metrics != nil {
		root.Use(s.opts.Metrics.Middleware)
	}
	root.Use(observability.RequestLogger(s.log), s.auth.Middleware)

	root.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	root.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		root.Handle("/metrics", observability.Handler(s.opts.Gatherer)).Methods(http.MethodGet)
	}

	api := root.PathPrefix(Prefix).Subrouter()
	api.Use(s.auth.RequireAdminFor(http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete))
	api.HandleFunc("/whoami", s.whoami).Methods(http.MethodGet)

	register(s, api, resource[domain.Modality]{
		path: "modalities", list: s.svc.ListModalities, get: s.svc.GetModality,
		create: s.svc.CreateModality, update: s.svc.UpdateModality, remove: s.svc.DeleteModality, put: true,
	})
	register(s, api, resource[domain.Compound]{
		path: "compounds", list: s.svc.ListCompounds, get: s.svc.GetCompound,
		create: s.svc.CreateCompound, update: s.svc.UpdateCompound, remove: s.svc.DeleteCompound, put: true,
	})
	register(s, api, resource[domain.CompoundProperty]{
		path: "properties", list: s.svc.ListCompoundProperties, get: s.svc.GetCompoundProperty,
		create: s.svc.CreateCompoundProperty, update: s.svc.UpdateCompoundProperty, remove: s.svc.DeleteCompoundProperty,
	})
	register(s, api, resource[domain.Stack]{
		path: "stacks", list: s.svc.ListStacks, get: s.svc.GetStack,
		create: s.svc.CreateStack, update: s.svc.UpdateStack, remove: s.svc.DeleteStack, put: true,
	})
	register(s, api, resource[domain.Cell]{
		path: "cells", list: s.svc.ListCells, get: s.svc.GetCell,
		create: s.svc.CreateCell, update: s.svc.UpdateCell, remove: s.svc.DeleteCell, put: true,
	})
	register(s, api, resource[domain.Tag]{
		path: "tags", list: s.svc.ListTags, get: s.svc.GetTag,
		create: s.svc.CreateTag, update: s.svc.UpdateTag, remove: s.svc.DeleteTag, put: true,
	})
	register(s, api, resource[domain.Plate]{
		path: "plates", list: s.svc.ListPlates, get: s.svc.GetPlate,
		create: s.svc.CreatePlate, update: s.svc.UpdatePlate, remove: s.svc.DeletePlate, put: true,
	})
	register(s, api, resource[domain.Section]{
		path: "sections", get: s.svc.GetSection,
		update: s.svc.UpdateSection, remove: s.svc.DeleteSection, put: true,
	})

	api.HandleFunc("/plates/{id}/sections", s.listPlateSections).Methods(http.MethodGet)
	api.HandleFunc("/plates/{id}/sections", s.createPlateSection).Methods(http.MethodPost)
	api.HandleFunc("/plates/{id}/sections", s.deletePlateSections).Methods(http.MethodDelete)
	api.HandleFunc("/plates/{id}/timepoints", s.listPlateTimePoints).Methods(http.MethodGet)
	api.HandleFunc("/plates/{id}/timepoints", s.createTimePoint).Methods(http.MethodPost)
	api.HandleFunc("/timepoints", s.listTimePoints).Methods(http.MethodGet)
	api.HandleFunc("/timepoints/{id}", s.getTimePoint).Methods(http.MethodGet)
	api.HandleFunc("/timepoints/{id}", s.deleteTimePoint).Methods(http.MethodDelete)

	api.HandleFunc("/items", s.listItems).Methods(http.MethodGet)
	api.HandleFunc("/items/tag/{tag_name}", s.tagItems).Methods(http.MethodPost)
	api.HandleFunc("/items/tag/{tag_name}", s.untagItems).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}", s.getItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", s.patchItem).Methods(http.MethodPatch)
	api.HandleFunc("/items/{id}", s.deleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/url", s.itemURL).Methods(http.MethodGet)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Store().View(r.Context(), func(domain.TransactionView) error { return nil })
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.ProfileFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: http.StatusText(http.StatusUnauthorized), Detail: "no credential presented"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// resource wires the standard collection and member routes of one entity.
// Nil operations are not routed.
type resource[T interface{ RecordID() string }] struct {
	path   string
	list   func(context.Context) ([]T, error)
	get    func(context.Context, string) (T, error)
	create func(context.Context, T) (T, domain.Result, error)
	update func(context.Context, string, func(*T) error) (T, domain.Result, error)
	remove func(context.Context, string) (domain.Result, error)
	// put enables full replacement in addition to PATCH.
	put bool
}

func register[T interface{ RecordID() string }](s *Server, api *mux.Router, res resource[T]) {
	collection, member := "/"+res.path, "/"+res.path+"/{id}"
	if res.list != nil {
		api.HandleFunc(collection, func(w http.ResponseWriter, r *http.Request) {
			out, err := res.list(r.Context())
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if out == nil {
				out = []T{}
			}
			writeJSON(w, http.StatusOK, out)
		}).Methods(http.MethodGet)
	}
	if res.create != nil {
		api.HandleFunc(collection, func(w http.ResponseWriter, r *http.Request) {
			var in T
			if err := decodeBody(w, r, &in); err != nil {
				s.writeError(w, r, err)
				return
			}
			created, _, err := res.create(r.Context(), in)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			w.Header().Set("Location", Prefix+collection+"/"+created.RecordID())
			writeJSON(w, http.StatusCreated, created)
		}).Methods(http.MethodPost)
	}
	if res.get != nil {
		api.HandleFunc(member, func(w http.ResponseWriter, r *http.Request) {
			out, err := res.get(r.Context(), mux.Vars(r)["id"])
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, out)
		}).Methods(http.MethodGet)
	}
	if res.update != nil {
		patch := func(w http.ResponseWriter, r *http.Request) {
			updateWith(s, w, r, res.update, false)
		}
		api.HandleFunc(member, patch).Methods(http.MethodPatch)
		if res.put {
			api.HandleFunc(member, func(w http.ResponseWriter, r *http.Request) {
				updateWith(s, w, r, res.update, true)
			}).Methods(http.MethodPut)
		} else {
			api.HandleFunc(member, methodNotAllowed).Methods(http.MethodPut)
		}
	}
	if res.remove != nil {
		api.HandleFunc(member, func(w http.ResponseWriter, r *http.Request) {
			if _, err := res.remove(r.Context(), mux.Vars(r)["id"]); err != nil {
				s.writeError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).Methods(http.MethodDelete)
	}
}

// updateWith applies the request body to the stored record. PATCH merges the
// fields present in the body; PUT replaces every writable field.
func updateWith[T any](s *Server, w http.ResponseWriter, r *http.Request, update func(context.Context, string, func(*T) error) (T, domain.Result, error), replace bool) {
	var (
		raw   json.RawMessage
		probe T
	)
	if replace {
		if err := decodeBody(w, r, &probe); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		if err := decodeBody(w, r, &raw); err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(raw) == 0 || raw[0] != '{' {
			s.writeError(w, r, domain.ErrValidation.New("request body must be a JSON object"))
			return
		}
	}
	updated, _, err := update(r.Context(), mux.Vars(r)["id"], func(cur *T) error {
		if replace {
			*cur = probe
			return nil
		}
		return mergeJSON(raw, cur)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
