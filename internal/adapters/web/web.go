// Package web serves the read-only HTML browsing UI under /ui.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"labcatalog/internal/core"
	"labcatalog/pkg/domain"
)

// Error is the error class for UI failures.
var Error = errs.Class("web")

// Prefix is the path prefix of every UI route.
const Prefix = "/ui"

//go:embed templates/*.html
var templateFS embed.FS

var pageName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Options configures a Handler.
type Options struct {
	// PagesDir holds the markdown files served at /ui/pages/{name}. Empty
	// disables the route's content.
	PagesDir string
	Logger   *zap.Logger
}

// Handler renders catalog records as HTML.
type Handler struct {
	svc       *core.Service
	log       *zap.Logger
	pagesDir  string
	templates *template.Template
	markdown  goldmark.Markdown
}

// New parses the embedded templates.
func New(svc *core.Service, opts Options) (*Handler, error) {
	tmpl, err := template.New("ui").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:       svc,
		log:       log,
		pagesDir:  opts.PagesDir,
		templates: tmpl,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

// Register installs the UI routes on root.
func (h *Handler) Register(root *mux.Router) {
	root.Handle("/", http.RedirectHandler(Prefix+"/", http.StatusFound)).Methods(http.MethodGet)

	ui := root.PathPrefix(Prefix).Subrouter()
	ui.HandleFunc("/", h.index).Methods(http.MethodGet)
	ui.HandleFunc("/plates", h.plates).Methods(http.MethodGet)
	ui.HandleFunc("/plates/{id}", h.plate).Methods(http.MethodGet)
	ui.HandleFunc("/sections", h.sections).Methods(http.MethodGet)
	ui.HandleFunc("/sections/{id}", h.section).Methods(http.MethodGet)
	ui.HandleFunc("/stacks", h.stacks).Methods(http.MethodGet)
	ui.HandleFunc("/stacks/{id}", h.stack).Methods(http.MethodGet)
	ui.HandleFunc("/modalities", h.modalities).Methods(http.MethodGet)
	ui.HandleFunc("/modalities/{id}", h.modality).Methods(http.MethodGet)
	ui.HandleFunc("/cells", h.cells).Methods(http.MethodGet)
	ui.HandleFunc("/cells/{id}", h.cell).Methods(http.MethodGet)
	ui.HandleFunc("/compounds", h.compounds).Methods(http.MethodGet)
	ui.HandleFunc("/compounds/{id}", h.compound).Methods(http.MethodGet)
	ui.HandleFunc("/tags", h.tags).Methods(http.MethodGet)
	ui.HandleFunc("/tags/{id}", h.tag).Methods(http.MethodGet)
	ui.HandleFunc("/pages/{name}", h.page).Methods(http.MethodGet)
	ui.HandleFunc("/items/{id}/image", h.image).Methods(http.MethodGet)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", view{Title: "Catalog", Links: navigation})
}

// page renders a markdown document from the pages directory.
func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if h.pagesDir == "" || !pageName.MatchString(name) {
		h.fail(w, r, domain.ErrNotFound.New("page %q", name))
		return
	}
	src, err := os.ReadFile(filepath.Join(h.pagesDir, name+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			err = domain.ErrNotFound.New("page %q", name)
		}
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.markdown.Convert(src, &buf); err != nil {
		h.fail(w, r, Error.Wrap(err))
		return
	}
	// Pages come from the operator's own directory.
	h.render(w, r, http.StatusOK, "page", view{Title: name, Body: template.HTML(buf.String())}) //nolint:gosec
}

// image streams the stored image of an item.
func (h *Handler) image(w http.ResponseWriter, r *http.Request) {
	info, rc, err := h.svc.OpenItemImage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("stream item image", zap.String("key", info.Key), zap.Error(err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	if v.Nav == nil {
		v.Nav = navigation
	}
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, v); err != nil {
		h.log.Error("failed to execute template", zap.String("template", name), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong."
	if domain.ErrNotFound.Has(err) {
		status = http.StatusNotFound
		message = err.Error()
	} else {
		h.log.Error("ui request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.render(w, r, status, "error", view{Title: http.StatusText(status), Message: message})
}
