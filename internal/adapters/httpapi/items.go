package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"labcatalog/internal/core"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

// pageParams are the pagination query parameters of GET /items.
type pageParams struct {
	Page     int `schema:"page"`
	PageSize int `schema:"page_size"`
}

// pageFor decodes page and page_size. A missing page_size uses the
// configured default and larger values are capped at the configured maximum.
func (s *Server) pageFor(r *http.Request) (pageParams, error) {
	var p pageParams
	if err := s.decoder.Decode(&p, r.URL.Query()); err != nil {
		return p, domain.ErrValidation.New("pagination: %w", err)
	}
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = s.opts.ItemsPerPage
	case p.PageSize > s.opts.MaxPageSize:
		p.PageSize = s.opts.MaxPageSize
	}
	return p, nil
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	page, err := s.pageFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filters, err := query.ParseFilters(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.ListItems(r.Context(), core.ItemQuery{Filters: filters, Page: page.Page, PageSize: page.PageSize})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	header, err := json.Marshal(res.Pagination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Pagination", string(header))
	writeJSON(w, http.StatusOK, res.Records)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) patchItem(w http.ResponseWriter, r *http.Request) {
	updateWith(s, w, r, s.svc.UpdateItem, false)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteItem(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) itemURL(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.ItemURL(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// tagResult reports a bulk tag mutation.
type tagResult struct {
	Tag   string `json:"tag"`
	Items int    `json:"items"`
}

func (s *Server) tagItems(w http.ResponseWriter, r *http.Request) {
	s.mutateTags(w, r, s.svc.TagItems)
}

func (s *Server) untagItems(w http.ResponseWriter, r *http.Request) {
	s.mutateTags(w, r, s.svc.UntagItems)
}

// mutateTags selects items with the request's query filters and applies op
// to all of them in one transaction.
func (s *Server) mutateTags(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tag string, filters []query.Filter) (int, domain.Result, error)) {
	name := mux.Vars(r)["tag_name"]
	filters, err := query.ParseFilters(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, _, err := op(r.Context(), name, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tagResult{Tag: name, Items: n})
}

func (s *Server) listPlateSections(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ListSections(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Section{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createPlateSection(w http.ResponseWriter, r *http.Request) {
	var in domain.Section
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.PlateID = mux.Vars(r)["id"]
	created, _, err := s.svc.CreateSection(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", Prefix+"/sections/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deletePlateSections(w http.ResponseWriter, r *http.Request) {
	n, _, err := s.svc.DeletePlateSections(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) listTimePoints(w http.ResponseWriter, r *http.Request) {
	s.writeTimePoints(w, r, "")
}

func (s *Server) listPlateTimePoints(w http.ResponseWriter, r *http.Request) {
	s.writeTimePoints(w, r, mux.Vars(r)["id"])
}

func (s *Server) writeTimePoints(w http.ResponseWriter, r *http.Request, plateID string) {
	out, err := s.svc.ListTimePoints(r.Context(), plateID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.TimePoint{}
	}
	writeJSON(w, http.StatusOK, out)
}

// timePointRequest is the body of POST /plates/{id}/timepoints.
type timePointRequest struct {
	URI  string    `json:"uri"`
	Time time.Time `json:"time"`
}

// timePointCreated is the response of a successful ingest.
type timePointCreated struct {
	domain.TimePoint
	Items int `json:"items"`
}

func (s *Server) createTimePoint(w http.ResponseWriter, r *http.Request) {
	var in timePointRequest
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	tp, n, _, err := s.svc.CreateTimePoint(r.Context(), mux.Vars(r)["id"], in.URI, in.Time)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", Prefix+"/timepoints/"+tp.ID)
	writeJSON(w, http.StatusCreated, timePointCreated{TimePoint: tp, Items: n})
}

func (s *Server) getTimePoint(w http.ResponseWriter, r *http.Request) {
	tp, err := s.svc.GetTimePoint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}

func (s *Server) deleteTimePoint(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteTimePoint(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
