package workflow

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/mmdatafocus/warehouse_backend/models"
)

func TestLedgerTransfer_RandomSequenceConservesTotal(t *testing.T) {
	f := newFixture(t)
	locations := []int{f.location(t, "A"), f.location(t, "B"), f.location(t, "C"), f.location(t, "D")}
	widget := f.item(t, "widget", 40, locations[0])
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))

	moved, rejected := 0, 0
	for i := 0; i < 500; i++ {
		from := locations[rng.IntN(len(locations))]
		to := locations[rng.IntN(len(locations))]
		if from == to {
			continue
		}
		qty := 1 + rng.IntN(12)
		before := f.quantity(t, widget, from)

		err := f.ledger.Transfer(ctx, widget, from, to, qty)
		switch {
		case err == nil:
			moved++
			if before < qty {
				t.Fatalf("transfer of %d succeeded with only %d at source", qty, before)
			}
		case errors.Is(err, models.ErrInsufficientStock):
			rejected++
			if before >= qty {
				t.Fatalf("transfer of %d rejected with %d at source", qty, before)
			}
		default:
			t.Fatalf("transfer %d: %v", i, err)
		}
		if total := f.total(t, widget); total != 40 {
			t.Fatalf("step %d: total = %d, want 40", i, total)
		}
	}
	if moved == 0 || rejected == 0 {
		t.Fatalf("sequence did not exercise both outcomes: moved=%d rejected=%d", moved, rejected)
	}

	item, err := f.store.GetItem(ctx, widget)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Quantity != 40 {
		t.Fatalf("item total = %d, want 40", item.Quantity)
	}
}

func TestLedgerTransfer_ShortSourceChangesNothing(t *testing.T) {
	f := newFixture(t)
	a, b := f.location(t, "A"), f.location(t, "B")
	widget := f.item(t, "widget", 3, a)

	err := f.ledger.Transfer(context.Background(), widget, a, b, 4)
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := f.quantity(t, widget, a); got != 3 {
		t.Fatalf("source = %d, want 3", got)
	}
	if got := f.quantity(t, widget, b); got != 0 {
		t.Fatalf("destination = %d, want 0", got)
	}
}

func TestLedgerTransfer_ConcurrentOppositeDirections(t *testing.T) {
	f := newFixture(t)
	a, b := f.location(t, "A"), f.location(t, "B")
	widget := f.item(t, "widget", 5, a)
	if err := f.ledger.Transfer(context.Background(), widget, a, b, 2); err != nil {
		t.Fatalf("seed transfer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = f.ledger.Transfer(context.Background(), widget, a, b, 1)
		}()
		go func() {
			defer wg.Done()
			_ = f.ledger.Transfer(context.Background(), widget, b, a, 1)
		}()
	}
	wg.Wait()

	if total := f.total(t, widget); total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
}

func TestLedgerReserve(t *testing.T) {
	f := newFixture(t)
	a, b := f.location(t, "A"), f.location(t, "B")
	widget := f.item(t, "widget", 5, a)
	ctx := context.Background()

	if err := f.ledger.Reserve(ctx, widget, a, 5); err != nil {
		t.Fatalf("reserve full balance: %v", err)
	}
	if err := f.ledger.Reserve(ctx, widget, a, 6); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("reserve over balance: expected insufficient stock, got %v", err)
	}
	if err := f.ledger.Reserve(ctx, widget, b, 1); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("reserve at empty location: expected insufficient stock, got %v", err)
	}
	if err := f.ledger.Reserve(ctx, widget, a, 0); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("reserve zero: expected validation error, got %v", err)
	}
	// Reserve places no hold.
	if got := f.quantity(t, widget, a); got != 5 {
		t.Fatalf("reserve changed the balance: %d", got)
	}
}
