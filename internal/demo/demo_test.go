package demo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/core"
	"labcatalog/internal/demo"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())

	sum, err := demo.Seed(ctx, svc)
	require.NoError(t, err)
	require.NotEmpty(t, sum.PlateID)
	require.Equal(t, 2, sum.TimePoints)
	require.Equal(t, 2*demo.ImageCount(), sum.Items)
	require.Equal(t, 3, sum.Sections)

	secs, err := svc.ListSections(ctx, sum.PlateID)
	require.NoError(t, err)
	require.Len(t, secs, 3)

	// rows A-B hold DMSO: 2 rows x 6 cols x 2 sites x 2 channels x 2 time points
	require.Equal(t, 96, sum.Tagged)
	page, err := svc.ListItems(ctx, core.ItemQuery{
		Filters:  []query.Filter{{Key: query.TagsKey, Value: "control"}, {Key: "chan", Value: "1"}},
		Page:     1,
		PageSize: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, 48, page.Pagination.Total)
	for _, rec := range page.Records {
		require.Equal(t, "DMSO", rec["compound_name"])
		require.Equal(t, "DAPI", rec["modality_name"])
	}
}

func TestSeedFiltersByPropertyLineage(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	_, err := demo.Seed(ctx, svc)
	require.NoError(t, err)

	page, err := svc.ListItems(ctx, core.ItemQuery{
		Filters:  []query.Filter{{Key: "compound_class", Value: "kinase inhibitor"}},
		Page:     1,
		PageSize: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, 96, page.Pagination.Total)
	for _, rec := range page.Records {
		require.Equal(t, "Gefitinib", rec["compound_name"])
	}
}

func TestSeedTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	_, err := demo.Seed(ctx, svc)
	require.NoError(t, err)

	_, err = demo.Seed(ctx, svc)
	require.Error(t, err)
	require.True(t, domain.ErrConflict.Has(err))
	require.True(t, demo.Error.Has(err))
}
