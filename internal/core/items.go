package core

import (
	"context"
	"io"

	"go.uber.org/zap"

	blobcore "labcatalog/internal/infra/blob/core"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

// ItemQuery selects a page of the item view.
type ItemQuery struct {
	Filters  []query.Filter
	Page     int
	PageSize int
}

// ItemPage is one page of flattened item rows.
type ItemPage struct {
	Records    []query.Record
	Pagination query.Pagination
}

// ListItems builds the joined item view, applies q.Filters and returns the
// requested page. Filters that resolve to nothing yield an empty page.
func (s *Service) ListItems(ctx context.Context, q ItemQuery) (ItemPage, error) {
	var page ItemPage
	err := s.read(ctx, "list_items", func(v domain.TransactionView) error {
		rows := query.Select(v, s.registry, q.Filters)
		selected, info := query.Paginate(rows, q.Page, q.PageSize)
		page.Pagination = info
		page.Records = make([]query.Record, 0, len(selected))
		for i := range selected {
			page.Records = append(page.Records, selected[i].Record())
		}
		return nil
	})
	return page, err
}

// GetItem returns the flattened view rows of one item; an item covered by
// several sections yields several records.
func (s *Service) GetItem(ctx context.Context, id string) ([]query.Record, error) {
	var out []query.Record
	err := s.read(ctx, "get_item", func(v domain.TransactionView) error {
		if _, ok := v.FindItem(id); !ok {
			return domain.NotFound(domain.EntityItem, id)
		}
		rows := query.Select(v, s.registry, []query.Filter{{Key: "id", Value: id}})
		for i := range rows {
			out = append(out, rows[i].Record())
		}
		return nil
	})
	return out, err
}

// UpdateItem mutates an item.
func (s *Service) UpdateItem(ctx context.Context, id string, mutator func(*Item) error) (Item, Result, error) {
	var updated Item
	res, err := s.mutate(ctx, "update_item", domain.EntityItem, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateItem(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteItem removes an item and its tag associations.
func (s *Service) DeleteItem(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_item", domain.EntityItem, func(tx Transaction) (string, error) {
		return id, tx.DeleteItem(id)
	})
}

func (s *Service) itemKey(ctx context.Context, id string) (string, error) {
	var key string
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		it, ok := v.FindItem(id)
		if !ok {
			return domain.NotFound(domain.EntityItem, id)
		}
		var err error
		key, err = blobcore.KeyFromURI(it.URI)
		return err
	})
	return key, err
}

func (s *Service) blobs() (blobcore.Store, error) {
	if s.reader == nil {
		return nil, Error.New("no blob store configured")
	}
	return s.reader.Store(), nil
}

// ItemURL returns a link to the item's image, presigned when the blob store
// supports it. Images missing from storage are reported as not found.
func (s *Service) ItemURL(ctx context.Context, id string) (string, error) {
	var u string
	err := s.observe(ctx, "item_url", func(ctx context.Context) error {
		store, err := s.blobs()
		if err != nil {
			return err
		}
		key, err := s.itemKey(ctx, id)
		if err != nil {
			return err
		}
		if _, err := store.Head(ctx, key); err != nil {
			return notFoundBlob(id, err)
		}
		u, err = store.URL(ctx, key, s.opts.urlExpiry)
		return err
	})
	return u, err
}

// OpenItemImage streams the item's image. Callers close the reader.
func (s *Service) OpenItemImage(ctx context.Context, id string) (blobcore.Info, io.ReadCloser, error) {
	var (
		info blobcore.Info
		rc   io.ReadCloser
	)
	err := s.observe(ctx, "open_item_image", func(ctx context.Context) error {
		store, err := s.blobs()
		if err != nil {
			return err
		}
		key, err := s.itemKey(ctx, id)
		if err != nil {
			return err
		}
		info, rc, err = store.Get(ctx, key)
		return notFoundBlob(id, err)
	})
	return info, rc, err
}

func notFoundBlob(itemID string, err error) error {
	if blobcore.ErrNotFound.Has(err) {
		return domain.ErrNotFound.New("image of item %q: %w", itemID, err)
	}
	return err
}

// TagItems attaches the tag named tagName to every item selected by filters,
// in one transaction. An item that already carries the tag fails the whole
// batch with a conflict.
func (s *Service) TagItems(ctx context.Context, tagName string, filters []query.Filter) (int, Result, error) {
	var n int
	res, err := s.mutate(ctx, "tag_items", domain.EntityItemTag, func(tx Transaction) (string, error) {
		tag, ok := tx.FindTagByName(tagName)
		if !ok {
			return "", domain.ErrNotFound.New("tag %q", tagName)
		}
		ids := query.ItemIDs(query.Select(tx, s.registry, filters))
		var err error
		n, err = tx.AttachTag(tag.ID, ids)
		return tag.ID, err
	})
	if err == nil {
		s.opts.logger.Info("items tagged", zap.String("tag", tagName), zap.Int("items", n))
	}
	return n, res, err
}

// UntagItems detaches the tag named tagName from every item selected by
// filters and returns how many associations were removed.
func (s *Service) UntagItems(ctx context.Context, tagName string, filters []query.Filter) (int, Result, error) {
	var n int
	res, err := s.mutate(ctx, "untag_items", domain.EntityItemTag, func(tx Transaction) (string, error) {
		tag, ok := tx.FindTagByName(tagName)
		if !ok {
			return "", domain.ErrNotFound.New("tag %q", tagName)
		}
		ids := query.ItemIDs(query.Select(tx, s.registry, filters))
		var err error
		n, err = tx.DetachTag(tag.ID, ids)
		return tag.ID, err
	})
	return n, res, err
}
