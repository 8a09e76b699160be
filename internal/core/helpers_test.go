package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	blobcore "labcatalog/internal/infra/blob/core"
	"labcatalog/pkg/domain"
)

const tp1URI = InMemoryScheme + "://project/exp1/tp1/"

// putImages writes one image per well of rows x cols under the prefix of uri.
func putImages(t *testing.T, svc *Service, uri string, rows string, cols int) {
	t.Helper()
	prefix, err := blobcore.KeyFromURI(uri)
	require.NoError(t, err)
	for _, r := range rows {
		for c := 1; c <= cols; c++ {
			key := fmt.Sprintf("%s%c%02d_s1_w1.tif", prefix, r, c)
			_, err := svc.Reader().Store().Put(context.Background(), key, strings.NewReader(key), blobcore.PutOptions{})
			require.NoError(t, err)
		}
	}
}

type fixture struct {
	svc   *Service
	plate domain.Plate
	tp    domain.TimePoint
	cell  domain.Cell
	comp  domain.Compound
	stack domain.Stack
}

// newFixture ingests plate P1 with items at rows A-D, cols 1-4 on channel 1
// and creates the reference data a section needs.
func newFixture(t *testing.T, opts ...ServiceOption) fixture {
	t.Helper()
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine(), opts...)
	putImages(t, svc, tp1URI, "ABCD", 4)

	f := fixture{svc: svc}
	var err error
	f.plate, _, err = svc.CreatePlate(ctx, domain.Plate{Name: "P1"})
	require.NoError(t, err)
	var n int
	f.tp, n, _, err = svc.CreateTimePoint(ctx, f.plate.ID, tp1URI, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 16, n)

	f.cell, _, err = svc.CreateCell(ctx, domain.Cell{Name: "HeLa", Code: "hela"})
	require.NoError(t, err)
	f.comp, _, err = svc.CreateCompound(ctx, domain.Compound{Name: "DMSO"})
	require.NoError(t, err)
	mod, _, err := svc.CreateModality(ctx, domain.Modality{Name: "DAPI", Target: "nucleus"})
	require.NoError(t, err)
	f.stack, _, err = svc.CreateStack(ctx, domain.Stack{Name: "nuclei", Channels: []domain.StackChannel{{ModalityID: mod.ID, Chan: 1}}})
	require.NoError(t, err)
	return f
}

func (f fixture) section(rowStart, rowEnd string, colStart, colEnd int) domain.Section {
	return domain.Section{
		PlateID: f.plate.ID, RowStart: rowStart, RowEnd: rowEnd, ColStart: colStart, ColEnd: colEnd,
		CellID: f.cell.ID, CompoundID: f.comp.ID, StackID: f.stack.ID,
	}
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, e AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAuditRecorder) find(op string) (AuditEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].Operation == op {
			return c.entries[i], true
		}
	}
	return AuditEntry{}, false
}
