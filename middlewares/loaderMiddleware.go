package middlewares

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/warehouse_backend/models"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// CatalogReader is the part of the store the loaders batch against.
type CatalogReader interface {
	GetItemsByIds(ctx context.Context, ids []int) ([]*models.Item, error)
	GetLocationsByIds(ctx context.Context, ids []int) ([]*models.Location, error)
}

// Loaders batch and cache catalog lookups for the lifetime of one request.
type Loaders struct {
	itemLoader     *dataloader.Loader[int, *models.Item]
	locationLoader *dataloader.Loader[int, *models.Location]
}

func NewLoaders(store CatalogReader) *Loaders {
	itemReader := &itemReader{store: store}
	locationReader := &locationReader{store: store}

	return &Loaders{
		itemLoader:     dataloader.NewBatchedLoader(itemReader.getItems, dataloader.WithWait[int, *models.Item](time.Millisecond)),
		locationLoader: dataloader.NewBatchedLoader(locationReader.getLocations, dataloader.WithWait[int, *models.Location](time.Millisecond)),
	}
}

func LoaderMiddleware(store CatalogReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(store)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders, or nil outside LoaderMiddleware.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults orders results by ids; unknown ids load as nil.
func generateLoaderResults[T any](results []*T, ids []int, idOf func(*T) int) []*dataloader.Result[*T] {
	resultMap := make(map[int]*T, len(results))
	for _, result := range results {
		resultMap[idOf(result)] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: resultMap[id]})
	}
	return loaderResults
}

// loadNames loads ids through loader and keeps the name of every one found.
func loadNames[T any](ctx context.Context, loader *dataloader.Loader[int, *T], ids []int, nameOf func(*T) string) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	values, errs := loader.LoadMany(ctx, ids)()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for i, value := range values {
		if value != nil {
			names[ids[i]] = nameOf(value)
		}
	}
	return names, nil
}

// ItemNames and LocationNames let the loaders resolve names for reports.
func (l *Loaders) ItemNames(ctx context.Context, ids []int) (map[int]string, error) {
	return loadNames(ctx, l.itemLoader, ids, func(item *models.Item) string { return item.Name })
}

func (l *Loaders) LocationNames(ctx context.Context, ids []int) (map[int]string, error) {
	return loadNames(ctx, l.locationLoader, ids, func(location *models.Location) string { return location.Name })
}
