package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/warehouse_backend/models"
)

type locationReader struct {
	store CatalogReader
}

func (r *locationReader) getLocations(ctx context.Context, ids []int) []*dataloader.Result[*models.Location] {
	results, err := r.store.GetLocationsByIds(ctx, ids)
	if err != nil {
		return handleError[*models.Location](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(location *models.Location) int { return location.ID })
}

func GetLocation(ctx context.Context, id int) (*models.Location, error) {
	loaders := For(ctx)
	return loaders.locationLoader.Load(ctx, id)()
}
