package workflow

import (
	"context"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/sirupsen/logrus"
)

// Catalog manages items and locations. Quantity edits are handed to the Ledger.
type Catalog struct {
	store  models.CatalogStore
	ledger *Ledger
	logger *logrus.Logger
}

func NewCatalog(store models.CatalogStore, ledger *Ledger, logger *logrus.Logger) *Catalog {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Catalog{store: store, ledger: ledger, logger: logger}
}

func (c *Catalog) CreateItem(ctx context.Context, input *models.NewItem) (*models.Item, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	item := &models.Item{
		Name:        input.Name,
		Description: input.Description,
		Quantity:    input.Quantity,
		LocationId:  input.LocationId,
	}
	if err := c.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"field":       "Catalog",
		"item_id":     item.ID,
		"location_id": item.LocationId,
		"quantity":    item.Quantity,
	}).Info("item created")
	return item, nil
}

func (c *Catalog) GetItem(ctx context.Context, id int) (*models.Item, error) {
	return c.store.GetItem(ctx, id)
}

func (c *Catalog) ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, int64, error) {
	return c.store.ListItems(ctx, filter)
}

// UpdateItem applies a partial update. A Quantity sets the stock at the target location
// (LocationId, else the item's home) in the same transaction as the other fields.
func (c *Catalog) UpdateItem(ctx context.Context, id int, input *models.UpdateItem) (*models.Item, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	changes := input.Changes()
	if changes.Quantity == nil {
		return c.store.UpdateItem(ctx, id, changes)
	}

	target := input.LocationId
	if target == nil {
		current, err := c.store.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		target = current.LocationId
	}
	if target == nil {
		return nil, models.NewValidationError("a location is required to set quantity", map[string]string{"location_id": "required_with_quantity"})
	}
	// The store re-resolves the location inside its transaction; the lock only orders ledger writers.
	var item *models.Item
	err := c.ledger.commitAdjust(ctx, id, *target, *changes.Quantity, func(ctx context.Context) error {
		var err error
		item, err = c.store.UpdateItem(ctx, id, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// SetItemImage records uploaded image URLs on the item without touching other fields.
func (c *Catalog) SetItemImage(ctx context.Context, id int, imageUrl, thumbnailUrl string) (*models.Item, error) {
	return c.store.UpdateItem(ctx, id, models.ItemChanges{ImageUrl: &imageUrl, ThumbnailUrl: &thumbnailUrl})
}

func (c *Catalog) DeleteItem(ctx context.Context, id int) error {
	if err := c.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"field": "Catalog", "item_id": id}).Info("item deleted")
	return nil
}

func (c *Catalog) CreateLocation(ctx context.Context, input *models.NewLocation) (*models.Location, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	location := &models.Location{
		Name:         input.Name,
		Description:  input.Description,
		Capacity:     input.Capacity,
		ContactPhone: input.ContactPhone,
	}
	if err := c.store.CreateLocation(ctx, location); err != nil {
		return nil, err
	}
	return location, nil
}

func (c *Catalog) GetLocation(ctx context.Context, id int) (*models.Location, error) {
	return c.store.GetLocation(ctx, id)
}

func (c *Catalog) ListLocations(ctx context.Context, filter models.LocationFilter) ([]*models.Location, error) {
	return c.store.ListLocations(ctx, filter)
}

func (c *Catalog) UpdateLocation(ctx context.Context, id int, input *models.UpdateLocation) (*models.Location, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	location, err := c.store.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	input.Apply(location)
	if err := c.store.UpdateLocation(ctx, location); err != nil {
		return nil, err
	}
	return location, nil
}

// DeleteLocation is refused while pending issues reference the location or it still holds stock.
func (c *Catalog) DeleteLocation(ctx context.Context, id int) error {
	if err := c.store.DeleteLocation(ctx, id); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"field": "Catalog", "location_id": id}).Info("location deleted")
	return nil
}
