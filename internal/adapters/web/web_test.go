package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"labcatalog/internal/adapters/web"
	"labcatalog/internal/core"
	"labcatalog/internal/demo"
	"labcatalog/internal/query"
)

type fixture struct {
	svc     *core.Service
	handler http.Handler
	plateID string
}

func newFixture(t *testing.T, pagesDir string) fixture {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	sum, err := demo.Seed(context.Background(), svc)
	require.NoError(t, err)
	h, err := web.New(svc, web.Options{PagesDir: pagesDir})
	require.NoError(t, err)
	root := mux.NewRouter()
	h.Register(root)
	return fixture{svc: svc, handler: root, plateID: sum.PlateID}
}

func (f fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListPages(t *testing.T) {
	f := newFixture(t, "")
	for path, want := range map[string]string{
		"/ui/":           "Catalog",
		"/ui/plates":     demo.PlateName,
		"/ui/stacks":     "nuclei-tubulin",
		"/ui/modalities": "DAPI",
		"/ui/cells":      "U2OS",
		"/ui/compounds":  "Gefitinib",
		"/ui/tags":       "control",
		"/ui/sections":   "C4:D6",
	} {
		t.Run(path, func(t *testing.T) {
			w := f.get(t, path)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			require.Contains(t, w.Body.String(), want)
		})
	}
}

func TestRootRedirects(t *testing.T) {
	f := newFixture(t, "")
	w := f.get(t, "/")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/ui/", w.Header().Get("Location"))
}

func TestPlateDetailSortsSections(t *testing.T) {
	f := newFixture(t, "")
	w := f.get(t, "/ui/plates/"+f.plateID)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	a := strings.Index(body, "A1:B6")
	c1 := strings.Index(body, "C1:D3")
	c4 := strings.Index(body, "C4:D6")
	require.True(t, a >= 0 && c1 > a && c4 > c1, body)
	require.Contains(t, body, "/ui/cells/")
	require.Contains(t, body, "Time points")
}

func TestStackDetailListsChannels(t *testing.T) {
	f := newFixture(t, "")
	stacks, err := f.svc.ListStacks(context.Background())
	require.NoError(t, err)
	require.Len(t, stacks, 1)

	w := f.get(t, "/ui/stacks/"+stacks[0].ID)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	dapi, gfp := strings.Index(body, "DAPI"), strings.Index(body, "GFP")
	require.True(t, dapi >= 0 && gfp > dapi, body)
	require.Contains(t, body, "/ui/modalities/"+stacks[0].Channels[0].ModalityID)
}

func TestCompoundDetailShowsLineage(t *testing.T) {
	f := newFixture(t, "")
	compounds, err := f.svc.ListCompounds(context.Background())
	require.NoError(t, err)
	var id string
	for _, c := range compounds {
		if c.Name == "Gefitinib" {
			id = c.ID
		}
	}
	require.NotEmpty(t, id)

	w := f.get(t, "/ui/compounds/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	root, leaf := strings.Index(body, "kinase inhibitor"), strings.Index(body, "EGFR")
	require.True(t, root >= 0 && leaf > root, body)
	require.NotContains(t, body, "solvent")
}

func TestDetailNotFound(t *testing.T) {
	f := newFixture(t, "")
	w := f.get(t, "/ui/plates/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "missing")
}

func TestMarkdownPages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "about.md"), []byte("# About\n\nImaging **catalog**.\n"), 0o600))
	f := newFixture(t, dir)

	w := f.get(t, "/ui/pages/about")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<h1>About</h1>")
	require.Contains(t, w.Body.String(), "<strong>catalog</strong>")

	require.Equal(t, http.StatusNotFound, f.get(t, "/ui/pages/missing").Code)
	require.Equal(t, http.StatusNotFound, f.get(t, "/ui/pages/bad.name").Code)
}

func TestItemImage(t *testing.T) {
	f := newFixture(t, "")
	page, err := f.svc.ListItems(context.Background(), core.ItemQuery{
		Filters:  []query.Filter{{Key: "row", Value: "A"}, {Key: "col", Value: "1"}, {Key: "site", Value: "1"}, {Key: "chan", Value: "2"}},
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.Records)
	id := page.Records[0]["id"].(string)

	w := f.get(t, "/ui/items/"+id+"/image")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/tiff", w.Header().Get("Content-Type"))
	require.Equal(t, "A01_s1_w2.tif", w.Body.String())

	require.Equal(t, http.StatusNotFound, f.get(t, "/ui/items/missing/image").Code)
}
