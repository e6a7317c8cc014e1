package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_backend/models"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, newStore func(t *testing.T) models.Store) {
	t.Run("item with opening stock", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		loc := mustLocation(t, store, "Main")

		item := &models.Item{Name: "bolt", Quantity: 12, LocationId: &loc.ID}
		if err := store.CreateItem(ctx, item); err != nil {
			t.Fatalf("create item: %v", err)
		}
		qty, err := store.GetBalance(ctx, item.ID, loc.ID)
		if err != nil || qty != 12 {
			t.Fatalf("balance = %d, %v", qty, err)
		}
		if _, err := store.GetItem(ctx, item.ID+1000); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("transfer is all or nothing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "nut", 5, a.ID)

		if err := store.Transfer(ctx, item.ID, a.ID, b.ID, 6); !errors.Is(err, models.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if err := store.Transfer(ctx, item.ID, a.ID, b.ID, 5); err != nil {
			t.Fatalf("transfer: %v", err)
		}
		assertBalance(t, store, item.ID, a.ID, 0)
		assertBalance(t, store, item.ID, b.ID, 5)

		got, _ := store.GetItem(ctx, item.ID)
		if got.Quantity != 5 {
			t.Fatalf("item total = %d, want 5", got.Quantity)
		}
	})

	t.Run("set balance keeps item total", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "washer", 5, a.ID)

		if _, err := store.SetBalance(ctx, item.ID, b.ID, 7); err != nil {
			t.Fatalf("set balance: %v", err)
		}
		if _, err := store.SetBalance(ctx, item.ID, a.ID, -1); !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		got, _ := store.GetItem(ctx, item.ID)
		if got.Quantity != 12 {
			t.Fatalf("item total = %d, want 12", got.Quantity)
		}
		total, err := store.RecalculateItemQuantity(ctx, item.ID)
		if err != nil || total != 12 {
			t.Fatalf("recalculate = %d, %v", total, err)
		}
	})

	t.Run("partial item update is atomic", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "gear", 5, a.ID)

		name, qty, missing := "sprocket", 3, b.ID+1000
		_, err := store.UpdateItem(ctx, item.ID, models.ItemChanges{Name: &name, Quantity: &qty, LocationId: &missing})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected not found for missing location, got %v", err)
		}
		got, _ := store.GetItem(ctx, item.ID)
		if got.Name != "gear" || got.Quantity != 5 || *got.LocationId != a.ID {
			t.Fatalf("failed update left changes behind: %+v", got)
		}

		updated, err := store.UpdateItem(ctx, item.ID, models.ItemChanges{Name: &name, Quantity: &qty, LocationId: &b.ID})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Name != "sprocket" || updated.Quantity != 8 || *updated.LocationId != b.ID {
			t.Fatalf("unexpected item after update: %+v", updated)
		}
		assertBalance(t, store, item.ID, b.ID, 3)

		url := "/uploads/items/x.png"
		updated, err = store.UpdateItem(ctx, item.ID, models.ItemChanges{ImageUrl: &url})
		if err != nil {
			t.Fatalf("image update: %v", err)
		}
		if updated.ImageUrl != url || updated.Name != "sprocket" || updated.Quantity != 8 {
			t.Fatalf("image update touched other fields: %+v", updated)
		}

		if _, err := store.UpdateItem(ctx, item.ID+1000, models.ItemChanges{Name: &name}); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected not found for missing item, got %v", err)
		}
	})

	t.Run("returned records are detached", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "cog", 2, a.ID)
		issue := &models.IssueRequest{ItemId: item.ID, Quantity: 1, FromLocationId: a.ID, ToLocationId: b.ID, RequestedBy: 1}
		if err := store.CreateIssue(ctx, issue); err != nil {
			t.Fatalf("create issue: %v", err)
		}
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		resolved, err := store.ResolveIssue(ctx, issue.ID, models.IssueStatusApproved, 7, at)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		*resolved.ResolvedAt = at.Add(time.Hour)
		*resolved.ResolvedBy = 99

		read, err := store.GetIssue(ctx, issue.ID)
		if err != nil {
			t.Fatalf("get issue: %v", err)
		}
		if !read.ResolvedAt.Equal(at) || *read.ResolvedBy != 7 {
			t.Fatalf("stored resolution changed through a returned pointer: %v by %d", read.ResolvedAt, *read.ResolvedBy)
		}
		*read.ResolvedAt = at.Add(2 * time.Hour)
		listed, err := store.ListIssues(ctx, models.IssueFilter{})
		if err != nil || len(listed) != 1 || !listed[0].ResolvedAt.Equal(at) {
			t.Fatalf("listed resolution changed: %+v %v", listed, err)
		}

		got, _ := store.GetItem(ctx, item.ID)
		*got.LocationId = b.ID
		again, _ := store.GetItem(ctx, item.ID)
		if *again.LocationId != a.ID {
			t.Fatalf("stored item location changed through a returned pointer")
		}
	})

	t.Run("resolve issue once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "gear", 10, a.ID)

		issue := &models.IssueRequest{ItemId: item.ID, Quantity: 4, FromLocationId: a.ID, ToLocationId: b.ID, RequestedBy: 1}
		if err := store.CreateIssue(ctx, issue); err != nil {
			t.Fatalf("create issue: %v", err)
		}
		if issue.Status != models.IssueStatusPending {
			t.Fatalf("status = %s", issue.Status)
		}
		resolved, err := store.ResolveIssue(ctx, issue.ID, models.IssueStatusApproved, 9, time.Now())
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if resolved.ResolvedBy == nil || *resolved.ResolvedBy != 9 || resolved.ResolvedAt == nil {
			t.Fatalf("resolution not recorded: %+v", resolved)
		}
		if _, err := store.ResolveIssue(ctx, issue.ID, models.IssueStatusDenied, 9, time.Now()); !errors.Is(err, models.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
		if _, err := store.ResolveIssue(ctx, issue.ID, models.IssueStatusPending, 9, time.Now()); !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		assertBalance(t, store, item.ID, a.ID, 6)
		assertBalance(t, store, item.ID, b.ID, 4)
	})

	t.Run("concurrent resolutions move stock once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "spring", 10, a.ID)
		issue := &models.IssueRequest{ItemId: item.ID, Quantity: 10, FromLocationId: a.ID, ToLocationId: b.ID, RequestedBy: 1}
		if err := store.CreateIssue(ctx, issue); err != nil {
			t.Fatalf("create issue: %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ResolveIssue(ctx, issue.ID, models.IssueStatusApproved, 1, time.Now())
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				} else if !errors.Is(err, models.ErrInvalidState) {
					t.Errorf("resolve: %v", err)
				}
			}()
		}
		wg.Wait()
		if succeeded != 1 {
			t.Fatalf("%d resolutions succeeded, want 1", succeeded)
		}
		assertBalance(t, store, item.ID, b.ID, 10)
	})

	t.Run("issue listing order and cursor", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		item := mustItem(t, store, "cog", 10, a.ID)
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		var ids []int
		for i := 0; i < 4; i++ {
			issue := &models.IssueRequest{
				ItemId: item.ID, Quantity: 1, FromLocationId: a.ID, ToLocationId: b.ID,
				RequestedBy: 1, CreatedAt: base.Add(time.Duration(3-i) * time.Minute),
			}
			if err := store.CreateIssue(ctx, issue); err != nil {
				t.Fatalf("create issue: %v", err)
			}
			ids = append(ids, issue.ID)
		}

		pending := models.IssueStatusPending
		first, err := store.ListIssues(ctx, models.IssueFilter{Status: &pending, Limit: 2})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(first) != 2 || first[0].ID != ids[3] || first[1].ID != ids[2] {
			t.Fatalf("first page = %v", issueIds(first))
		}
		cursor := first[1].CursorFor(models.IssueOrderCreated)
		rest, err := store.ListIssues(ctx, models.IssueFilter{Status: &pending, After: &cursor})
		if err != nil {
			t.Fatalf("list after: %v", err)
		}
		if len(rest) != 2 || rest[0].ID != ids[1] || rest[1].ID != ids[0] {
			t.Fatalf("second page = %v", issueIds(rest))
		}
	})

	t.Run("location delete guards", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		a, b := mustLocation(t, store, "A"), mustLocation(t, store, "B")
		mustItem(t, store, "pin", 1, a.ID)

		if err := store.DeleteLocation(ctx, a.ID); !errors.Is(err, models.ErrConflict) {
			t.Fatalf("expected conflict for stocked location, got %v", err)
		}
		if err := store.DeleteLocation(ctx, b.ID); err != nil {
			t.Fatalf("delete empty location: %v", err)
		}
		if _, err := store.GetLocation(ctx, b.ID); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("unique usernames", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.CreateUser(ctx, &models.User{Username: "ana", Email: "ana@example.com", Password: "x", Role: models.UserRoleUser}); err != nil {
			t.Fatalf("create user: %v", err)
		}
		err := store.CreateUser(ctx, &models.User{Username: "ana", Email: "other@example.com", Password: "x", Role: models.UserRoleUser})
		if !errors.Is(err, models.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if _, err := store.GetUserByUsername(ctx, "nobody"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func(t *testing.T) models.Store { return models.NewMemoryStore() })
}

func mustLocation(t *testing.T, store models.Store, name string) *models.Location {
	t.Helper()
	location := &models.Location{Name: name}
	if err := store.CreateLocation(context.Background(), location); err != nil {
		t.Fatalf("create location: %v", err)
	}
	return location
}

func mustItem(t *testing.T, store models.Store, name string, qty, locationId int) *models.Item {
	t.Helper()
	item := &models.Item{Name: name, Quantity: qty, LocationId: &locationId}
	if err := store.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func assertBalance(t *testing.T, store models.Store, itemId, locationId, want int) {
	t.Helper()
	got, err := store.GetBalance(context.Background(), itemId, locationId)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if got != want {
		t.Fatalf("balance(%d,%d) = %d, want %d", itemId, locationId, got, want)
	}
}

func issueIds(issues []*models.IssueRequest) []int {
	ids := make([]int, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	return ids
}
