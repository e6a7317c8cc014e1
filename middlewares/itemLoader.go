package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/warehouse_backend/models"
)

type itemReader struct {
	store CatalogReader
}

func (r *itemReader) getItems(ctx context.Context, ids []int) []*dataloader.Result[*models.Item] {
	results, err := r.store.GetItemsByIds(ctx, ids)
	if err != nil {
		return handleError[*models.Item](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(item *models.Item) int { return item.ID })
}

// GetItem returns nil for an unknown id.
func GetItem(ctx context.Context, id int) (*models.Item, error) {
	loaders := For(ctx)
	return loaders.itemLoader.Load(ctx, id)()
}
