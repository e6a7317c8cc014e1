package models

import (
	"context"
	"time"
)

// Store is the persistence port. Every method is all-or-nothing: on error nothing was written.
// Lookups of unknown ids fail with a NotFound *Error.
type Store interface {
	CatalogStore
	LedgerStore
	IssueStore
	UserStore
}

type CatalogStore interface {
	// CreateItem inserts item; a positive item.Quantity becomes the opening balance at item.LocationId.
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id int) (*Item, error)
	// GetItemsByIds skips unknown ids.
	GetItemsByIds(ctx context.Context, ids []int) ([]*Item, error)
	// UpdateItem applies changes in one transaction and returns the result. A Quantity
	// change sets the balance at the resulting location and recomputes the item total.
	UpdateItem(ctx context.Context, id int, changes ItemChanges) (*Item, error)
	// DeleteItem removes the item and its balances. Conflict while pending issues reference it.
	DeleteItem(ctx context.Context, id int) error
	// ListItems orders by id and returns the page plus the total number of matches.
	ListItems(ctx context.Context, filter ItemFilter) ([]*Item, int64, error)

	CreateLocation(ctx context.Context, location *Location) error
	GetLocation(ctx context.Context, id int) (*Location, error)
	GetLocationsByIds(ctx context.Context, ids []int) ([]*Location, error)
	UpdateLocation(ctx context.Context, location *Location) error
	// DeleteLocation is a Conflict while pending issues reference it or stock remains there.
	DeleteLocation(ctx context.Context, id int) error
	ListLocations(ctx context.Context, filter LocationFilter) ([]*Location, error)
}

type LedgerStore interface {
	// GetBalance returns 0 for a pair with no row.
	GetBalance(ctx context.Context, itemId, locationId int) (int, error)
	// ListBalances orders by (item_id, location_id).
	ListBalances(ctx context.Context, filter BalanceFilter) ([]*StockBalance, error)
	// SetBalance overwrites one balance and recomputes the item total.
	SetBalance(ctx context.Context, itemId, locationId, quantity int) (*StockBalance, error)
	// Transfer moves qty between locations or fails with InsufficientStock without writing.
	Transfer(ctx context.Context, itemId, fromLocationId, toLocationId, qty int) error
	// RecalculateItemQuantity rewrites the item total from its balances and returns it.
	RecalculateItemQuantity(ctx context.Context, itemId int) (int, error)
}

type IssueStore interface {
	// CreateIssue checks the item and both locations exist and inserts the issue as pending.
	CreateIssue(ctx context.Context, issue *IssueRequest) error
	GetIssue(ctx context.Context, id int) (*IssueRequest, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]*IssueRequest, error)
	// ResolveIssue moves a pending issue to status. Approval applies the transfer in the same
	// transaction; InvalidState if the issue is no longer pending, InsufficientStock if the source is short.
	ResolveIssue(ctx context.Context, id int, status IssueStatus, resolverId int, at time.Time) (*IssueRequest, error)
}

type UserStore interface {
	// CreateUser is a Conflict when the username or email is taken.
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int) (*User, error)
	// GetUserByUsername returns NotFound for unknown usernames.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}
