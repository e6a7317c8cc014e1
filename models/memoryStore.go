package models

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type balanceKey struct {
	itemId     int
	locationId int
}

// MemoryStore keeps everything in maps behind one mutex, so each call is atomic.
// Values are copied in and out; callers never share memory with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[int]*Item
	locations map[int]*Location
	balances  map[balanceKey]*StockBalance
	issues    map[int]*IssueRequest
	users     map[int]*User
	seq       map[string]int
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[int]*Item),
		locations: make(map[int]*Location),
		balances:  make(map[balanceKey]*StockBalance),
		issues:    make(map[int]*IssueRequest),
		users:     make(map[int]*User),
		seq:       make(map[string]int),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) nextId(table string) int {
	s.seq[table]++
	return s.seq[table]
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

// cloneItem and cloneIssue also copy pointed-to fields so callers never share state with the store.
func cloneItem(item *Item) *Item {
	c := copyOf(item)
	if item.LocationId != nil {
		c.LocationId = copyOf(item.LocationId)
	}
	return c
}

func cloneIssue(issue *IssueRequest) *IssueRequest {
	c := copyOf(issue)
	if issue.ResolvedBy != nil {
		c.ResolvedBy = copyOf(issue.ResolvedBy)
	}
	if issue.ResolvedAt != nil {
		c.ResolvedAt = copyOf(issue.ResolvedAt)
	}
	return c
}

func containsFold(name, search string) bool {
	return search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

/* catalog */

func (s *MemoryStore) CreateItem(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Quantity > 0 {
		if item.LocationId == nil {
			return NewValidationError("invalid item", map[string]string{"location_id": "required_with_quantity"})
		}
	}
	if item.LocationId != nil {
		if _, ok := s.locations[*item.LocationId]; !ok {
			return NewNotFoundError("location", *item.LocationId)
		}
	}

	now := s.now()
	item.ID = s.nextId("items")
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = cloneItem(item)
	if item.Quantity > 0 {
		s.balances[balanceKey{item.ID, *item.LocationId}] = &StockBalance{
			ItemId:     item.ID,
			LocationId: *item.LocationId,
			Quantity:   item.Quantity,
			Version:    1,
			UpdatedAt:  now,
		}
	}
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id int) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, NewNotFoundError("item", id)
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) GetItemsByIds(ctx context.Context, ids []int) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			results = append(results, cloneItem(item))
		}
	}
	return results, nil
}

func (s *MemoryStore) UpdateItem(ctx context.Context, id int, changes ItemChanges) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[id]
	if !ok {
		return nil, NewNotFoundError("item", id)
	}
	if changes.LocationId != nil {
		if _, ok := s.locations[*changes.LocationId]; !ok {
			return nil, NewNotFoundError("location", *changes.LocationId)
		}
	}
	locationId := 0
	if changes.Quantity != nil {
		var err error
		if locationId, err = changes.quantityLocation(existing.LocationId); err != nil {
			return nil, err
		}
		if _, ok := s.locations[locationId]; !ok {
			return nil, NewNotFoundError("location", locationId)
		}
	}

	if changes.Name != nil {
		existing.Name = *changes.Name
	}
	if changes.Description != nil {
		existing.Description = *changes.Description
	}
	if changes.LocationId != nil {
		existing.LocationId = copyOf(changes.LocationId)
	}
	if changes.ImageUrl != nil {
		existing.ImageUrl = *changes.ImageUrl
	}
	if changes.ThumbnailUrl != nil {
		existing.ThumbnailUrl = *changes.ThumbnailUrl
	}
	if changes.Quantity != nil {
		s.setBalanceLocked(existing, locationId, *changes.Quantity)
	}
	existing.UpdatedAt = s.now()
	return cloneItem(existing), nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return NewNotFoundError("item", id)
	}
	for _, issue := range s.issues {
		if issue.ItemId == id && issue.Status == IssueStatusPending {
			return NewConflictError("item has pending issue requests")
		}
	}
	for key := range s.balances {
		if key.itemId == id {
			delete(s.balances, key)
		}
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) ListItems(ctx context.Context, filter ItemFilter) ([]*Item, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Item
	for _, item := range s.items {
		if containsFold(item.Name, filter.Search) {
			matched = append(matched, item)
		}
	}
	slices.SortFunc(matched, func(a, b *Item) int { return cmp.Compare(a.ID, b.ID) })

	page := Paginate(matched, filter.PageRequest)
	results := make([]*Item, len(page))
	for i, item := range page {
		results[i] = cloneItem(item)
	}
	return results, int64(len(matched)), nil
}

func (s *MemoryStore) CreateLocation(ctx context.Context, location *Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	location.ID = s.nextId("locations")
	location.CreatedAt = now
	location.UpdatedAt = now
	s.locations[location.ID] = copyOf(location)
	return nil
}

func (s *MemoryStore) GetLocation(ctx context.Context, id int) (*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	location, ok := s.locations[id]
	if !ok {
		return nil, NewNotFoundError("location", id)
	}
	return copyOf(location), nil
}

func (s *MemoryStore) GetLocationsByIds(ctx context.Context, ids []int) ([]*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*Location, 0, len(ids))
	for _, id := range ids {
		if location, ok := s.locations[id]; ok {
			results = append(results, copyOf(location))
		}
	}
	return results, nil
}

func (s *MemoryStore) UpdateLocation(ctx context.Context, location *Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locations[location.ID]
	if !ok {
		return NewNotFoundError("location", location.ID)
	}
	existing.Name = location.Name
	existing.Description = location.Description
	existing.Capacity = location.Capacity
	existing.ContactPhone = location.ContactPhone
	existing.UpdatedAt = s.now()
	*location = *existing
	return nil
}

func (s *MemoryStore) DeleteLocation(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[id]; !ok {
		return NewNotFoundError("location", id)
	}
	for _, issue := range s.issues {
		if issue.Status == IssueStatusPending && (issue.FromLocationId == id || issue.ToLocationId == id) {
			return NewConflictError("location is referenced by pending issue requests")
		}
	}
	for key, balance := range s.balances {
		if key.locationId == id && balance.Quantity > 0 {
			return NewConflictError("location still holds stock")
		}
	}
	for key := range s.balances {
		if key.locationId == id {
			delete(s.balances, key)
		}
	}
	for _, item := range s.items {
		if item.LocationId != nil && *item.LocationId == id {
			item.LocationId = nil
		}
	}
	delete(s.locations, id)
	return nil
}

func (s *MemoryStore) ListLocations(ctx context.Context, filter LocationFilter) ([]*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Location
	for _, location := range s.locations {
		if containsFold(location.Name, filter.Search) {
			matched = append(matched, location)
		}
	}
	slices.SortFunc(matched, func(a, b *Location) int { return cmp.Compare(a.ID, b.ID) })

	page := Paginate(matched, filter.PageRequest)
	results := make([]*Location, len(page))
	for i, location := range page {
		results[i] = copyOf(location)
	}
	return results, nil
}

/* ledger */

func (s *MemoryStore) GetBalance(ctx context.Context, itemId, locationId int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if balance, ok := s.balances[balanceKey{itemId, locationId}]; ok {
		return balance.Quantity, nil
	}
	return 0, nil
}

func (s *MemoryStore) ListBalances(ctx context.Context, filter BalanceFilter) ([]*StockBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*StockBalance
	for key, balance := range s.balances {
		if filter.ItemId != nil && key.itemId != *filter.ItemId {
			continue
		}
		if filter.LocationId != nil && key.locationId != *filter.LocationId {
			continue
		}
		results = append(results, copyOf(balance))
	}
	slices.SortFunc(results, func(a, b *StockBalance) int {
		return cmp.Or(cmp.Compare(a.ItemId, b.ItemId), cmp.Compare(a.LocationId, b.LocationId))
	})
	return results, nil
}

func (s *MemoryStore) SetBalance(ctx context.Context, itemId, locationId, quantity int) (*StockBalance, error) {
	if quantity < 0 {
		return nil, NewValidationError("invalid quantity", map[string]string{"quantity": "gte"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemId]
	if !ok {
		return nil, NewNotFoundError("item", itemId)
	}
	if _, ok := s.locations[locationId]; !ok {
		return nil, NewNotFoundError("location", locationId)
	}

	return copyOf(s.setBalanceLocked(item, locationId, quantity)), nil
}

// setBalanceLocked requires s.mu held for writing and both rows to exist.
func (s *MemoryStore) setBalanceLocked(item *Item, locationId, quantity int) *StockBalance {
	key := balanceKey{item.ID, locationId}
	balance, ok := s.balances[key]
	if !ok {
		balance = &StockBalance{ItemId: item.ID, LocationId: locationId}
		s.balances[key] = balance
	}
	item.Quantity += quantity - balance.Quantity
	balance.Quantity = quantity
	balance.Version++
	balance.UpdatedAt = s.now()
	return balance
}

func (s *MemoryStore) Transfer(ctx context.Context, itemId, fromLocationId, toLocationId, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transferLocked(itemId, fromLocationId, toLocationId, qty)
}

// transferLocked requires s.mu held for writing.
func (s *MemoryStore) transferLocked(itemId, fromLocationId, toLocationId, qty int) error {
	if qty <= 0 {
		return NewValidationError("invalid quantity", map[string]string{"quantity": "gt"})
	}
	if fromLocationId == toLocationId {
		return NewValidationError("source and destination must differ", map[string]string{"to_location_id": "nefield"})
	}
	if _, ok := s.items[itemId]; !ok {
		return NewNotFoundError("item", itemId)
	}
	if _, ok := s.locations[toLocationId]; !ok {
		return NewNotFoundError("location", toLocationId)
	}

	from, ok := s.balances[balanceKey{itemId, fromLocationId}]
	available := 0
	if ok {
		available = from.Quantity
	}
	if available < qty {
		return NewInsufficientStockError(itemId, fromLocationId, available, qty)
	}

	now := s.now()
	toKey := balanceKey{itemId, toLocationId}
	to, ok := s.balances[toKey]
	if !ok {
		to = &StockBalance{ItemId: itemId, LocationId: toLocationId}
		s.balances[toKey] = to
	}
	from.Quantity -= qty
	from.Version++
	from.UpdatedAt = now
	to.Quantity += qty
	to.Version++
	to.UpdatedAt = now
	return nil
}

func (s *MemoryStore) RecalculateItemQuantity(ctx context.Context, itemId int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemId]
	if !ok {
		return 0, NewNotFoundError("item", itemId)
	}
	total := 0
	for key, balance := range s.balances {
		if key.itemId == itemId {
			total += balance.Quantity
		}
	}
	item.Quantity = total
	return total, nil
}

/* issues */

func (s *MemoryStore) CreateIssue(ctx context.Context, issue *IssueRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[issue.ItemId]; !ok {
		return NewNotFoundError("item", issue.ItemId)
	}
	for _, locationId := range []int{issue.FromLocationId, issue.ToLocationId} {
		if _, ok := s.locations[locationId]; !ok {
			return NewNotFoundError("location", locationId)
		}
	}

	issue.ID = s.nextId("issues")
	issue.Status = IssueStatusPending
	issue.ResolvedAt = nil
	issue.ResolvedBy = nil
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = s.now()
	}
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (s *MemoryStore) GetIssue(ctx context.Context, id int) (*IssueRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, NewNotFoundError("issue", id)
	}
	return cloneIssue(issue), nil
}

func (s *MemoryStore) ListIssues(ctx context.Context, filter IssueFilter) ([]*IssueRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := filter.OrderBy
	if order == "" {
		order = IssueOrderCreated
	}

	var matched []*IssueRequest
	for _, issue := range s.issues {
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		if filter.ItemId != nil && issue.ItemId != *filter.ItemId {
			continue
		}
		if filter.From != nil && issue.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && issue.CreatedAt.After(*filter.To) {
			continue
		}
		at, ok := issue.sortKey(order)
		if !ok {
			continue
		}
		if filter.After != nil {
			c := at.Compare(filter.After.At)
			if c < 0 || (c == 0 && issue.ID <= filter.After.ID) {
				continue
			}
		}
		matched = append(matched, issue)
	}
	slices.SortFunc(matched, func(a, b *IssueRequest) int {
		at, _ := a.sortKey(order)
		bt, _ := b.sortKey(order)
		return cmp.Or(at.Compare(bt), cmp.Compare(a.ID, b.ID))
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	results := make([]*IssueRequest, len(matched))
	for i, issue := range matched {
		results[i] = cloneIssue(issue)
	}
	return results, nil
}

func (s *MemoryStore) ResolveIssue(ctx context.Context, id int, status IssueStatus, resolverId int, at time.Time) (*IssueRequest, error) {
	if !status.IsTerminal() {
		return nil, NewValidationError("issue can only be resolved to approved or denied", map[string]string{"status": "oneof"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, NewNotFoundError("issue", id)
	}
	if issue.Status != IssueStatusPending {
		return nil, NewInvalidStateError(id, issue.Status)
	}
	if status == IssueStatusApproved {
		if err := s.transferLocked(issue.ItemId, issue.FromLocationId, issue.ToLocationId, issue.Quantity); err != nil {
			return nil, err
		}
	}

	resolvedAt := at.UTC()
	issue.Status = status
	issue.ResolvedBy = &resolverId
	issue.ResolvedAt = &resolvedAt
	return cloneIssue(issue), nil
}

/* users */

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return NewConflictError("username already exists")
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return NewConflictError("email already exists")
		}
	}
	now := s.now()
	user.ID = s.nextId("users")
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = copyOf(user)
	return nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return NewNotFoundError("user", user.ID)
	}
	for _, other := range s.users {
		if other.ID != user.ID && strings.EqualFold(other.Email, user.Email) {
			return NewConflictError("email already exists")
		}
	}
	existing.Email = user.Email
	existing.Password = user.Password
	existing.Role = user.Role
	existing.UpdatedAt = s.now()
	*user = *existing
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, NewNotFoundError("user", id)
	}
	return copyOf(user), nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Username, username) {
			return copyOf(user), nil
		}
	}
	return nil, &Error{Kind: ErrNotFound, Message: "user " + username + " not found"}
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		results = append(results, copyOf(user))
	}
	slices.SortFunc(results, func(a, b *User) int { return cmp.Compare(a.ID, b.ID) })
	return results, nil
}
