package nestedset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/nestedset"
)

func TestRenumberForest(t *testing.T) {
	nodes := []nestedset.Node{
		{ID: "kinase", SortKey: "moa_group/kinase"},
		{ID: "egfr", ParentID: "kinase", SortKey: "moa_subgroup/egfr"},
		{ID: "cdk", ParentID: "kinase", SortKey: "moa_subgroup/cdk"},
		{ID: "erlotinib", ParentID: "egfr", SortKey: "target/erlotinib"},
		{ID: "tubulin", SortKey: "moa_group/tubulin"},
	}

	pos, err := nestedset.Renumber(nodes)
	require.NoError(t, err)
	require.Len(t, pos, len(nodes))

	require.Equal(t, nestedset.Bounds{Left: 1, Right: 8}, pos["kinase"].Bounds)
	require.Equal(t, nestedset.Bounds{Left: 2, Right: 3}, pos["cdk"].Bounds)
	require.Equal(t, nestedset.Bounds{Left: 4, Right: 7}, pos["egfr"].Bounds)
	require.Equal(t, nestedset.Bounds{Left: 5, Right: 6}, pos["erlotinib"].Bounds)
	require.Equal(t, nestedset.Bounds{Left: 9, Right: 10}, pos["tubulin"].Bounds)

	require.Equal(t, 0, pos["kinase"].Depth)
	require.Equal(t, 2, pos["erlotinib"].Depth)

	for _, n := range nodes {
		if n.ParentID == "" {
			continue
		}
		require.True(t, nestedset.IsAncestor(pos[n.ParentID].Bounds, pos[n.ID].Bounds), n.ID)
	}
	require.False(t, nestedset.Contains(pos["kinase"].Bounds, pos["tubulin"].Bounds))
	require.False(t, nestedset.Contains(pos["egfr"].Bounds, pos["cdk"].Bounds))
	require.True(t, nestedset.Contains(pos["egfr"].Bounds, pos["egfr"].Bounds))
}

func TestRenumberRejectsBrokenStructure(t *testing.T) {
	_, err := nestedset.Renumber([]nestedset.Node{{ID: "a", ParentID: "missing"}})
	require.Error(t, err)
	require.True(t, nestedset.Error.Has(err))

	_, err = nestedset.Renumber([]nestedset.Node{
		{ID: "root"},
		{ID: "a", ParentID: "b"},
		{ID: "b", ParentID: "a"},
	})
	require.ErrorContains(t, err, "cycle")

	_, err = nestedset.Renumber([]nestedset.Node{{ID: "a"}, {ID: "a"}})
	require.ErrorContains(t, err, "duplicate")
}

func TestContainsUnassigned(t *testing.T) {
	require.False(t, nestedset.Contains(nestedset.Bounds{}, nestedset.Bounds{Left: 1, Right: 2}))
	require.False(t, nestedset.Contains(nestedset.Bounds{Left: 1, Right: 4}, nestedset.Bounds{}))
}

func TestAncestorsOrder(t *testing.T) {
	all := []nestedset.Bounds{
		{Left: 5, Right: 6},
		{Left: 1, Right: 8},
		{Left: 9, Right: 10},
		{Left: 4, Right: 7},
	}
	require.Equal(t, []int{1, 3, 0}, nestedset.Ancestors(all, nestedset.Bounds{Left: 5, Right: 6}))
	require.Empty(t, nestedset.Ancestors(all, nestedset.Bounds{Left: 11, Right: 12}))
}
