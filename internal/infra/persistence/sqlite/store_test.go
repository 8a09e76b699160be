package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		parent, err := tx.CreateCompoundProperty(domain.CompoundProperty{Type: "moa_group", Value: "kinase"})
		if err != nil {
			return err
		}
		_, err = tx.CreateCompoundProperty(domain.CompoundProperty{Type: "target", Value: "egfr", ParentID: &parent.ID})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reloaded.Close() })
	require.Equal(t, path, reloaded.Path())
	require.NoError(t, reloaded.View(ctx, func(v domain.TransactionView) error {
		props := v.ListCompoundProperties()
		require.Len(t, props, 2)
		require.Equal(t, 1, props[0].Left)
		require.Equal(t, 4, props[0].Right)
		return nil
	}))
}

func TestSQLiteStoreRollsBackFailedTransaction(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateModality(domain.Modality{Name: "GFP"})
		return err
	})
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateModality(domain.Modality{Name: "RFP"}); err != nil {
			return err
		}
		_, err := tx.CreateModality(domain.Modality{Name: "GFP"})
		return err
	})
	require.True(t, domain.ErrDependency.Has(err))

	require.NoError(t, store.View(ctx, func(v domain.TransactionView) error {
		mods := v.ListModalities()
		require.Len(t, mods, 1)
		require.Equal(t, "GFP", mods[0].Name)
		return nil
	}))

	var table string
	require.NoError(t, store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", "state").Scan(&table))
	require.Equal(t, "state", table)
}
