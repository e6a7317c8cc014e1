package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxTxAttempts = 3

// GormStore persists to MySQL. Ledger writes use row locks plus conditional updates,
// so balances stay non-negative even across processes.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// transaction retries deadlocks and lock wait timeouts; other errors return at once.
func (s *GormStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !config.IsRetryableTxError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt*20) * time.Millisecond)
	}
	return err
}

func notFoundOr(err error, entity string, id int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewNotFoundError(entity, id)
	}
	return err
}

func requireExists[T any](tx *gorm.DB, entity string, id int) error {
	var count int64
	if err := tx.Model(new(T)).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return NewNotFoundError(entity, id)
	}
	return nil
}

/* catalog */

func (s *GormStore) CreateItem(ctx context.Context, item *Item) error {
	if item.Quantity > 0 && item.LocationId == nil {
		return NewValidationError("invalid item", map[string]string{"location_id": "required_with_quantity"})
	}
	return s.transaction(ctx, func(tx *gorm.DB) error {
		if item.LocationId != nil {
			if err := requireExists[Location](tx, "location", *item.LocationId); err != nil {
				return err
			}
		}
		item.ID = 0
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		if item.Quantity > 0 {
			balance := StockBalance{
				ItemId:     item.ID,
				LocationId: *item.LocationId,
				Quantity:   item.Quantity,
				Version:    1,
			}
			if err := tx.Create(&balance).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) GetItem(ctx context.Context, id int) (*Item, error) {
	var item Item
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, notFoundOr(err, "item", id)
	}
	return &item, nil
}

func (s *GormStore) GetItemsByIds(ctx context.Context, ids []int) ([]*Item, error) {
	var items []*Item
	if len(ids) == 0 {
		return items, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *GormStore) UpdateItem(ctx context.Context, id int, changes ItemChanges) (*Item, error) {
	var item Item
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, id).Error; err != nil {
			return notFoundOr(err, "item", id)
		}
		if changes.LocationId != nil {
			if err := requireExists[Location](tx, "location", *changes.LocationId); err != nil {
				return err
			}
		}
		locationId := 0
		if changes.Quantity != nil {
			var err error
			if locationId, err = changes.quantityLocation(item.LocationId); err != nil {
				return err
			}
			if err := requireExists[Location](tx, "location", locationId); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{"updated_at": now}
		if changes.Name != nil {
			updates["name"] = *changes.Name
		}
		if changes.Description != nil {
			updates["description"] = *changes.Description
		}
		if changes.LocationId != nil {
			updates["location_id"] = *changes.LocationId
		}
		if changes.ImageUrl != nil {
			updates["image_url"] = *changes.ImageUrl
		}
		if changes.ThumbnailUrl != nil {
			updates["thumbnail_url"] = *changes.ThumbnailUrl
		}
		if err := tx.Model(&Item{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if changes.Quantity != nil {
			if err := upsertBalance(tx, id, locationId, *changes.Quantity, now); err != nil {
				return err
			}
			if err := syncItemTotal(tx, id); err != nil {
				return err
			}
		}
		return tx.First(&item, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *GormStore) DeleteItem(ctx context.Context, id int) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var item Item
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, id).Error; err != nil {
			return notFoundOr(err, "item", id)
		}
		var pending int64
		if err := tx.Model(&IssueRequest{}).
			Where("item_id = ? AND status = ?", id, IssueStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return NewConflictError("item has pending issue requests")
		}
		if err := tx.Where("item_id = ?", id).Delete(&StockBalance{}).Error; err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
}

func (s *GormStore) ListItems(ctx context.Context, filter ItemFilter) ([]*Item, int64, error) {
	dbCtx := s.db.WithContext(ctx).Model(&Item{})
	if filter.Search != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*Item
	page := filter.PageRequest.Normalize()
	query := dbCtx.Order("id")
	if page.Limit > 0 {
		query = query.Offset(page.Offset()).Limit(page.Limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *GormStore) CreateLocation(ctx context.Context, location *Location) error {
	location.ID = 0
	return s.db.WithContext(ctx).Create(location).Error
}

func (s *GormStore) GetLocation(ctx context.Context, id int) (*Location, error) {
	var location Location
	if err := s.db.WithContext(ctx).First(&location, id).Error; err != nil {
		return nil, notFoundOr(err, "location", id)
	}
	return &location, nil
}

func (s *GormStore) GetLocationsByIds(ctx context.Context, ids []int) ([]*Location, error) {
	var locations []*Location
	if len(ids) == 0 {
		return locations, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func (s *GormStore) UpdateLocation(ctx context.Context, location *Location) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&Location{}).Where("id = ?", location.ID).Updates(map[string]interface{}{
			"name":          location.Name,
			"description":   location.Description,
			"capacity":      location.Capacity,
			"contact_phone": location.ContactPhone,
			"updated_at":    time.Now().UTC(),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := requireExists[Location](tx, "location", location.ID); err != nil {
				return err
			}
		}
		return tx.First(location, location.ID).Error
	})
}

func (s *GormStore) DeleteLocation(ctx context.Context, id int) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var location Location
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&location, id).Error; err != nil {
			return notFoundOr(err, "location", id)
		}
		var pending int64
		if err := tx.Model(&IssueRequest{}).
			Where("status = ? AND (from_location_id = ? OR to_location_id = ?)", IssueStatusPending, id, id).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return NewConflictError("location is referenced by pending issue requests")
		}
		var stocked int64
		if err := tx.Model(&StockBalance{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("location_id = ? AND quantity > 0", id).
			Count(&stocked).Error; err != nil {
			return err
		}
		if stocked > 0 {
			return NewConflictError("location still holds stock")
		}
		if err := tx.Where("location_id = ?", id).Delete(&StockBalance{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Item{}).Where("location_id = ?", id).Update("location_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&location).Error
	})
}

func (s *GormStore) ListLocations(ctx context.Context, filter LocationFilter) ([]*Location, error) {
	dbCtx := s.db.WithContext(ctx).Model(&Location{})
	if filter.Search != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+filter.Search+"%")
	}
	page := filter.PageRequest.Normalize()
	dbCtx = dbCtx.Order("id")
	if page.Limit > 0 {
		dbCtx = dbCtx.Offset(page.Offset()).Limit(page.Limit)
	}
	var locations []*Location
	if err := dbCtx.Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

/* ledger */

func (s *GormStore) GetBalance(ctx context.Context, itemId, locationId int) (int, error) {
	var balance StockBalance
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Quantity, nil
}

func (s *GormStore) ListBalances(ctx context.Context, filter BalanceFilter) ([]*StockBalance, error) {
	dbCtx := s.db.WithContext(ctx).Model(&StockBalance{})
	if filter.ItemId != nil {
		dbCtx = dbCtx.Where("item_id = ?", *filter.ItemId)
	}
	if filter.LocationId != nil {
		dbCtx = dbCtx.Where("location_id = ?", *filter.LocationId)
	}
	var balances []*StockBalance
	if err := dbCtx.Order("item_id").Order("location_id").Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *GormStore) SetBalance(ctx context.Context, itemId, locationId, quantity int) (*StockBalance, error) {
	if quantity < 0 {
		return nil, NewValidationError("invalid quantity", map[string]string{"quantity": "gte"})
	}
	var balance StockBalance
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var item Item
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, itemId).Error; err != nil {
			return notFoundOr(err, "item", itemId)
		}
		if err := requireExists[Location](tx, "location", locationId); err != nil {
			return err
		}
		if err := upsertBalance(tx, itemId, locationId, quantity, time.Now().UTC()); err != nil {
			return err
		}
		if err := syncItemTotal(tx, itemId); err != nil {
			return err
		}
		return tx.Where("item_id = ? AND location_id = ?", itemId, locationId).Take(&balance).Error
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// upsertBalance overwrites one balance row, creating it on first use.
func upsertBalance(tx *gorm.DB, itemId, locationId, quantity int, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}, {Name: "location_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   quantity,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}),
	}).Create(&StockBalance{ItemId: itemId, LocationId: locationId, Quantity: quantity, Version: 1, UpdatedAt: now}).Error
}

// syncItemTotal rewrites items.quantity from the balances inside tx.
func syncItemTotal(tx *gorm.DB, itemId int) error {
	return tx.Exec(
		"UPDATE items SET quantity = (SELECT COALESCE(SUM(quantity), 0) FROM stock_balances WHERE item_id = ?), updated_at = ? WHERE id = ?",
		itemId, time.Now().UTC(), itemId,
	).Error
}

func (s *GormStore) Transfer(ctx context.Context, itemId, fromLocationId, toLocationId, qty int) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		return transferTx(tx, itemId, fromLocationId, toLocationId, qty)
	})
}

// transferTx decrements the source only while it covers qty, then upserts the destination.
func transferTx(tx *gorm.DB, itemId, fromLocationId, toLocationId, qty int) error {
	if qty <= 0 {
		return NewValidationError("invalid quantity", map[string]string{"quantity": "gt"})
	}
	if fromLocationId == toLocationId {
		return NewValidationError("source and destination must differ", map[string]string{"to_location_id": "nefield"})
	}
	if err := requireExists[Item](tx, "item", itemId); err != nil {
		return err
	}
	if err := requireExists[Location](tx, "location", toLocationId); err != nil {
		return err
	}

	now := time.Now().UTC()
	result := tx.Exec(
		"UPDATE stock_balances SET quantity = quantity - ?, version = version + 1, updated_at = ? WHERE item_id = ? AND location_id = ? AND quantity >= ?",
		qty, now, itemId, fromLocationId, qty,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var available int
		if err := tx.Model(&StockBalance{}).
			Select("COALESCE(SUM(quantity), 0)").
			Where("item_id = ? AND location_id = ?", itemId, fromLocationId).
			Scan(&available).Error; err != nil {
			return err
		}
		return NewInsufficientStockError(itemId, fromLocationId, available, qty)
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}, {Name: "location_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", qty),
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}),
	}).Create(&StockBalance{ItemId: itemId, LocationId: toLocationId, Quantity: qty, Version: 1, UpdatedAt: now}).Error
}

func (s *GormStore) RecalculateItemQuantity(ctx context.Context, itemId int) (int, error) {
	var item Item
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, itemId).Error; err != nil {
			return notFoundOr(err, "item", itemId)
		}
		if err := syncItemTotal(tx, itemId); err != nil {
			return err
		}
		return tx.First(&item, itemId).Error
	})
	if err != nil {
		return 0, err
	}
	return item.Quantity, nil
}

/* issues */

func (s *GormStore) CreateIssue(ctx context.Context, issue *IssueRequest) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireExists[Item](tx, "item", issue.ItemId); err != nil {
			return err
		}
		for _, locationId := range []int{issue.FromLocationId, issue.ToLocationId} {
			if err := requireExists[Location](tx, "location", locationId); err != nil {
				return err
			}
		}
		issue.ID = 0
		issue.Status = IssueStatusPending
		issue.ResolvedAt = nil
		issue.ResolvedBy = nil
		if issue.CreatedAt.IsZero() {
			issue.CreatedAt = time.Now().UTC()
		}
		return tx.Create(issue).Error
	})
}

func (s *GormStore) GetIssue(ctx context.Context, id int) (*IssueRequest, error) {
	var issue IssueRequest
	if err := s.db.WithContext(ctx).First(&issue, id).Error; err != nil {
		return nil, notFoundOr(err, "issue", id)
	}
	return &issue, nil
}

func (s *GormStore) ListIssues(ctx context.Context, filter IssueFilter) ([]*IssueRequest, error) {
	column := "created_at"
	if filter.OrderBy == IssueOrderResolved {
		column = "resolved_at"
	}

	dbCtx := s.db.WithContext(ctx).Model(&IssueRequest{})
	if column == "resolved_at" {
		dbCtx = dbCtx.Where("resolved_at IS NOT NULL")
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.ItemId != nil {
		dbCtx = dbCtx.Where("item_id = ?", *filter.ItemId)
	}
	if filter.From != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *filter.To)
	}
	if filter.After != nil {
		dbCtx = dbCtx.Where(
			fmt.Sprintf("(%s > ? OR (%s = ? AND id > ?))", column, column),
			filter.After.At, filter.After.At, filter.After.ID,
		)
	}
	dbCtx = dbCtx.Order(column).Order("id")
	if filter.Limit > 0 {
		dbCtx = dbCtx.Limit(filter.Limit)
	}

	var issues []*IssueRequest
	if err := dbCtx.Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *GormStore) ResolveIssue(ctx context.Context, id int, status IssueStatus, resolverId int, at time.Time) (*IssueRequest, error) {
	if !status.IsTerminal() {
		return nil, NewValidationError("issue can only be resolved to approved or denied", map[string]string{"status": "oneof"})
	}

	var issue IssueRequest
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&issue, id).Error; err != nil {
			return notFoundOr(err, "issue", id)
		}
		if issue.Status != IssueStatusPending {
			return NewInvalidStateError(id, issue.Status)
		}
		if status == IssueStatusApproved {
			if err := transferTx(tx, issue.ItemId, issue.FromLocationId, issue.ToLocationId, issue.Quantity); err != nil {
				return err
			}
		}

		resolvedAt := at.UTC()
		result := tx.Model(&IssueRequest{}).
			Where("id = ? AND status = ?", id, IssueStatusPending).
			Updates(map[string]interface{}{
				"status":      status,
				"resolved_by": resolverId,
				"resolved_at": resolvedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return NewInvalidStateError(id, issue.Status)
		}
		issue.Status = status
		issue.ResolvedBy = &resolverId
		issue.ResolvedAt = &resolvedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

/* users */

func (s *GormStore) CreateUser(ctx context.Context, user *User) error {
	user.ID = 0
	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return NewConflictError("username or email already exists")
	}
	return err
}

func (s *GormStore) UpdateUser(ctx context.Context, user *User) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"email":      user.Email,
		"password":   user.Password,
		"role":       user.Role,
		"updated_at": time.Now().UTC(),
	})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return NewConflictError("email already exists")
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return requireExists[User](s.db.WithContext(ctx), "user", user.ID)
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id int) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return &user, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &Error{Kind: ErrNotFound, Message: "user " + username + " not found"}
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
