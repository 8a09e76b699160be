package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

func TestSectionPlacementScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.CreateSection(ctx, f.section("A", "B", 1, 2))
	require.NoError(t, err)

	_, _, err = f.svc.CreateSection(ctx, f.section("B", "C", 1, 2))
	var blocked domain.RuleViolationError
	require.True(t, errors.As(err, &blocked), "got %v", err)
	require.Equal(t, "section_overlap", blocked.Result.Violations[0].Rule)
	require.Contains(t, err.Error(), first.ID)

	_, _, err = f.svc.CreateSection(ctx, f.section("C", "D", 3, 4))
	require.NoError(t, err)

	sections, err := f.svc.ListSections(ctx, f.plate.ID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
}

func TestSectionBoundsRejectEitherAxis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, sec := range []domain.Section{
		f.section("A", "E", 1, 2), // rows only
		f.section("A", "B", 3, 5), // cols only
		f.section("E", "F", 5, 6), // both
	} {
		_, _, err := f.svc.CreateSection(ctx, sec)
		var blocked domain.RuleViolationError
		require.True(t, errors.As(err, &blocked), "%+v: %v", sec, err)
		require.Equal(t, "section_bounds", blocked.Result.Violations[0].Rule)
		require.Contains(t, blocked.Result.Violations[0].Message, "A-D x 1-4")
	}

	empty, _, err := f.svc.CreatePlate(ctx, domain.Plate{Name: "empty"})
	require.NoError(t, err)
	sec := f.section("A", "A", 1, 1)
	sec.PlateID = empty.ID
	_, _, err = f.svc.CreateSection(ctx, sec)
	require.ErrorContains(t, err, "has no items")
}

func TestSectionUpdateIsRevalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.CreateSection(ctx, f.section("A", "A", 1, 4))
	require.NoError(t, err)
	other, _, err := f.svc.CreateSection(ctx, f.section("C", "D", 1, 4))
	require.NoError(t, err)

	_, _, err = f.svc.UpdateSection(ctx, other.ID, func(s *domain.Section) error {
		s.RowStart = "A"
		return nil
	})
	var blocked domain.RuleViolationError
	require.True(t, errors.As(err, &blocked))

	got, err := f.svc.GetSection(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, "C", got.RowStart, "blocked update must not be committed")

	_, _, err = f.svc.UpdateSection(ctx, other.ID, func(s *domain.Section) error {
		s.RowStart = "B"
		return nil
	})
	require.NoError(t, err)
}

func TestDeletePlateSections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, sec := range []domain.Section{f.section("A", "A", 1, 4), f.section("B", "B", 1, 4)} {
		_, _, err := f.svc.CreateSection(ctx, sec)
		require.NoError(t, err)
	}
	n, _, err := f.svc.DeletePlateSections(ctx, f.plate.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, _, err = f.svc.DeletePlateSections(ctx, "missing")
	require.True(t, domain.ErrNotFound.Has(err))
	_, err = f.svc.ListSections(ctx, "missing")
	require.True(t, domain.ErrNotFound.Has(err))
}

func TestTimePointIngestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for uri, class := range map[string]*errs.Class{
		tp1URI:                          &domain.ErrDependency,
		"badscheme://project/exp1/tp1/": &domain.ErrValidation,
		"scheme://project/exp1/tp1":     &domain.ErrValidation,
	} {
		_, _, _, err := f.svc.CreateTimePoint(ctx, f.plate.ID, uri, time.Time{})
		require.True(t, class.Has(err), "%s: %v", uri, err)
	}

	_, _, _, err := f.svc.CreateTimePoint(ctx, "missing", "scheme://project/exp2/", time.Time{})
	require.True(t, domain.ErrNotFound.Has(err))

	tp, n, _, err := f.svc.CreateTimePoint(ctx, f.plate.ID, "scheme://project/exp3/tp1/", time.Time{})
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, tp.Time.IsZero())

	tps, err := f.svc.ListTimePoints(ctx, f.plate.ID)
	require.NoError(t, err)
	require.Len(t, tps, 2)
}

func TestDeleteTimePointCascadesToItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.CreateTag(ctx, domain.Tag{Name: "qc"})
	require.NoError(t, err)
	n, _, err := f.svc.TagItems(ctx, "qc", []query.Filter{{Key: "row", Value: "A"}})
	require.NoError(t, err)
	require.Equal(t, 4, n)

	_, err = f.svc.DeleteTimePoint(ctx, f.tp.ID)
	require.NoError(t, err)

	page, err := f.svc.ListItems(ctx, ItemQuery{Page: 1, PageSize: 100})
	require.NoError(t, err)
	require.Empty(t, page.Records)

	// the tag is free again once its items are gone
	tags, err := f.svc.ListTags(ctx)
	require.NoError(t, err)
	_, err = f.svc.DeleteTag(ctx, tags[0].ID)
	require.NoError(t, err)
}

func TestModalityDependencies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateModality(ctx, domain.Modality{Name: "DAPI"})
	require.True(t, domain.ErrDependency.Has(err), "duplicate name: %v", err)
	_, _, err = f.svc.CreateCompound(ctx, domain.Compound{Name: "DMSO"})
	require.True(t, domain.ErrDependency.Has(err), "duplicate name: %v", err)

	used := f.stack.Channels[0].ModalityID
	_, err = f.svc.DeleteModality(ctx, used)
	require.True(t, domain.ErrDependency.Has(err))

	free, _, err := f.svc.CreateModality(ctx, domain.Modality{Name: "GFP"})
	require.NoError(t, err)
	_, err = f.svc.DeleteModality(ctx, free.ID)
	require.NoError(t, err)
	_, err = f.svc.GetModality(ctx, free.ID)
	require.True(t, domain.ErrNotFound.Has(err))
}

func TestListItemsFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.CreateSection(ctx, f.section("A", "B", 1, 2))
	require.NoError(t, err)

	page, err := f.svc.ListItems(ctx, ItemQuery{Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, page.Records, 5)
	require.Equal(t, 16, page.Pagination.Total)
	require.Equal(t, 4, page.Pagination.TotalPages)

	page, err = f.svc.ListItems(ctx, ItemQuery{Filters: []query.Filter{{Key: "cell_code", Value: "hela"}}, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Len(t, page.Records, 4)
	for _, rec := range page.Records {
		require.Equal(t, "nuclei", rec["stack"])
	}

	page, err = f.svc.ListItems(ctx, ItemQuery{Filters: []query.Filter{{Key: "moa", Value: "none"}}, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Empty(t, page.Records)
	require.Zero(t, page.Pagination.Total)
}

func TestTagAndUntagItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"red", "blue"} {
		_, _, err := f.svc.CreateTag(ctx, domain.Tag{Name: name})
		require.NoError(t, err)
	}

	_, _, err := f.svc.TagItems(ctx, "green", nil)
	require.True(t, domain.ErrNotFound.Has(err))

	n, _, err := f.svc.TagItems(ctx, "red", []query.Filter{{Key: "col", Value: "1"}})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	_, _, err = f.svc.TagItems(ctx, "blue", []query.Filter{{Key: "row", Value: "A"}, {Key: "col", Value: "1"}})
	require.NoError(t, err)

	// A1 already carries red: the whole batch is rejected
	_, _, err = f.svc.TagItems(ctx, "red", []query.Filter{{Key: "row", Value: "A"}})
	require.True(t, domain.ErrConflict.Has(err))

	page, err := f.svc.ListItems(ctx, ItemQuery{Filters: []query.Filter{{Key: query.TagsKey, Value: "red"}}, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Len(t, page.Records, 4)
	require.Equal(t, "blue,red", page.Records[0]["tags"])

	page, err = f.svc.ListItems(ctx, ItemQuery{Filters: []query.Filter{{Key: query.TagsKey, Value: "re"}}, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Empty(t, page.Records)

	n, _, err = f.svc.UntagItems(ctx, "red", []query.Filter{{Key: "row", Value: "A"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestItemURLAndImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page, err := f.svc.ListItems(ctx, ItemQuery{Filters: []query.Filter{{Key: "row", Value: "B"}, {Key: "col", Value: "3"}}, Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	id := page.Records[0]["id"].(string)

	u, err := f.svc.ItemURL(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "memory://blob/exp1/tp1/B03_s1_w1.tif", u)

	_, rc, err := f.svc.OpenItemImage(ctx, id)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "exp1/tp1/B03_s1_w1.tif", string(body))

	_, _, err = f.svc.UpdateItem(ctx, id, func(it *domain.Item) error {
		it.URI = "scheme://project/exp1/tp1/gone.tif"
		return nil
	})
	require.NoError(t, err)
	_, err = f.svc.ItemURL(ctx, id)
	require.True(t, domain.ErrNotFound.Has(err))

	_, err = f.svc.ItemURL(ctx, "missing")
	require.True(t, domain.ErrNotFound.Has(err))

	records, err := f.svc.GetItem(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	_, err = f.svc.DeleteItem(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.GetItem(ctx, id)
	require.True(t, domain.ErrNotFound.Has(err))
}

func TestCompoundPropertyTreeThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kinase, _, err := f.svc.CreateCompoundProperty(ctx, domain.CompoundProperty{Type: "moa", Value: "kinase"})
	require.NoError(t, err)
	egfr, _, err := f.svc.CreateCompoundProperty(ctx, domain.CompoundProperty{Type: "target", Value: "egfr", ParentID: &kinase.ID})
	require.NoError(t, err)
	_, _, err = f.svc.UpdateCompound(ctx, f.comp.ID, func(c *domain.Compound) error {
		c.PropertyID = &egfr.ID
		return nil
	})
	require.NoError(t, err)
	_, _, err = f.svc.CreateSection(ctx, f.section("C", "D", 1, 1))
	require.NoError(t, err)

	page, err := f.svc.ListItems(ctx, ItemQuery{Filters: []query.Filter{{Key: "compound_moa", Value: "kinase"}}, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, "egfr", page.Records[0]["compound_target"])

	_, err = f.svc.DeleteCompoundProperty(ctx, kinase.ID)
	require.True(t, domain.ErrDependency.Has(err))

	props, err := f.svc.ListCompoundProperties(ctx)
	require.NoError(t, err)
	require.Len(t, props, 2)
	require.Less(t, props[0].Left, props[1].Left)
	require.Greater(t, props[0].Right, props[1].Right)
}

func TestServiceObservability(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	audit := &captureAuditRecorder{}
	tracer := NewJSONTracer(nil)
	f := newFixture(t, WithMetricsRecorder(metrics), WithAuditRecorder(audit), WithTracer(tracer))
	ctx := WithActor(context.Background(), "admin@example.org")

	_, _, err := f.svc.CreateCell(ctx, domain.Cell{Name: "U2OS", Code: "u2os"})
	require.NoError(t, err)
	entry, ok := audit.find("create_cell")
	require.True(t, ok)
	require.Equal(t, AuditStatusSuccess, entry.Status)
	require.Equal(t, "admin@example.org", entry.Actor)
	require.Equal(t, domain.EntityCell, entry.Entity)
	require.NotEmpty(t, entry.EntityID)

	_, err = f.svc.DeleteCell(ctx, "missing")
	require.Error(t, err)
	entry, ok = audit.find("delete_cell")
	require.True(t, ok)
	require.Equal(t, AuditStatusError, entry.Status)
	require.True(t, metrics.has("delete_cell", false))
	require.True(t, metrics.has("create_timepoint", true))

	_, err = f.svc.ListPlates(ctx)
	require.NoError(t, err)
	require.True(t, metrics.has("list_plates", true))
	_, reads := audit.find("list_plates")
	require.False(t, reads, "reads are not audited")

	var sawFailure bool
	for _, e := range tracer.Entries() {
		if e.Operation == "delete_cell" && e.Status == "error" {
			sawFailure = true
		}
	}
	require.True(t, sawFailure)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	rec.Observe(context.Background(), "list_items", true, 3*time.Millisecond)
	rec.Observe(context.Background(), "list_items", false, time.Millisecond)
	rec.Observe(context.Background(), "list_items", true, time.Millisecond)

	require.Equal(t, 2.0, promtest.ToFloat64(rec.operations.WithLabelValues("list_items", "success")))
	require.Equal(t, 1.0, promtest.ToFloat64(rec.operations.WithLabelValues("list_items", "error")))

	_, err = NewPrometheusMetricsRecorder(reg)
	require.True(t, Error.Has(err), "duplicate registration")
}

func TestExpvarMetricsRecorderSnapshot(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "get_plate", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "get_plate", false, time.Millisecond)
	snap := rec.Snapshot()
	require.InDelta(t, 3.0, snap.DurationsMS["get_plate"], 0.001)
	require.Equal(t, int64(1), snap.Results["get_plate"]["error"])
}

func TestZapAuditRecorderLevels(t *testing.T) {
	observed, logs := observer.New(zap.InfoLevel)
	rec := NewZapAuditRecorder(zap.New(observed))
	rec.Record(context.Background(), AuditEntry{Operation: "create_tag", Status: AuditStatusSuccess})
	rec.Record(context.Background(), AuditEntry{Operation: "delete_tag", Status: AuditStatusError, Error: "boom"})
	require.Equal(t, 1, logs.FilterMessage("admin action").Len())
	failed := logs.FilterMessage("admin action failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "boom", failed[0].ContextMap()["error"])
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "list_tags")
	span.End(nil)
	require.Contains(t, buf.String(), `"operation":"list_tags"`)
	require.Len(t, tracer.Entries(), 1)
}

func TestOpenPersistentStore(t *testing.T) {
	st, closeFn, err := OpenPersistentStore(StorageOptions{Driver: StorageMemory}, nil)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NoError(t, closeFn())

	st, closeFn, err = OpenPersistentStore(StorageOptions{SQLitePath: t.TempDir() + "/catalog.db"}, NewDefaultRulesEngine())
	require.NoError(t, err)
	svc := NewService(st, nil)
	_, _, err = svc.CreatePlate(context.Background(), domain.Plate{Name: "persisted"})
	require.NoError(t, err)
	_, _, _, err = svc.CreateTimePoint(context.Background(), "p", "scheme://x/y/", time.Time{})
	require.True(t, Error.Has(err), "no ingest reader")
	require.NoError(t, closeFn())

	_, _, err = OpenPersistentStore(StorageOptions{Driver: "mongo"}, nil)
	require.True(t, Error.Has(err))
}
