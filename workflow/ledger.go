package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ledgerLockTTL     = 10 * time.Second
	ledgerLockRetries = 20
)

// Ledger owns every quantity change. Mutations on an (item, location) pair are serialized
// by an in-process keyed lock, optionally backed by redis locks for multi-replica deployments.
// The store re-checks stock inside its own transaction, so the locks never carry correctness alone.
type Ledger struct {
	store  models.LedgerStore
	locks  *utils.KeyedMutex
	locker *redislock.Client
	logger *logrus.Logger
}

// NewLedger wires the ledger; locker may be nil to keep locking in-process.
func NewLedger(store models.LedgerStore, locker *redislock.Client, logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Ledger{
		store:  store,
		locks:  utils.NewKeyedMutex(),
		locker: locker,
		logger: logger,
	}
}

func pairKey(itemId, locationId int) string {
	return fmt.Sprintf("stock:%d:%d", itemId, locationId)
}

// withPairs runs fn while holding the locks of every (itemId, location) pair.
// Locks are taken in sorted key order so overlapping callers cannot deadlock.
func (l *Ledger) withPairs(ctx context.Context, itemId int, locationIds []int, fn func(ctx context.Context) error) error {
	keys := make([]string, 0, len(locationIds))
	for _, locationId := range locationIds {
		keys = append(keys, pairKey(itemId, locationId))
	}
	unlock := l.locks.Lock(keys...)
	defer unlock()

	release := l.obtainDistributed(ctx, keys)
	defer release()

	return fn(ctx)
}

// obtainDistributed is best effort; without redis the store transaction still guards the balances.
func (l *Ledger) obtainDistributed(ctx context.Context, keys []string) func() {
	if l.locker == nil {
		return func() {}
	}
	var held []*redislock.Lock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.WithFields(logrus.Fields{"field": "Ledger", "key": held[i].Key()}).Warn("failed to release redis lock: " + err.Error())
			}
		}
	}
	for _, key := range slices.Compact(slices.Sorted(slices.Values(keys))) {
		lock, err := l.locker.Obtain(ctx, "lock:"+key, ledgerLockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), ledgerLockRetries),
		})
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"field": "Ledger",
				"key":   key,
			}).Warn("could not obtain redis lock; proceeding with in-process lock only: " + err.Error())
			continue
		}
		held = append(held, lock)
	}
	return release
}

func (l *Ledger) GetQuantity(ctx context.Context, itemId, locationId int) (int, error) {
	return l.store.GetBalance(ctx, itemId, locationId)
}

// Reserve succeeds only if the source holds at least qty. It places no hold;
// callers that go on to move stock must do so under the same lock (see withPairs).
func (l *Ledger) Reserve(ctx context.Context, itemId, fromLocationId, qty int) error {
	return l.withPairs(ctx, itemId, []int{fromLocationId}, func(ctx context.Context) error {
		return l.reserve(ctx, itemId, fromLocationId, qty)
	})
}

func (l *Ledger) reserve(ctx context.Context, itemId, fromLocationId, qty int) error {
	if qty <= 0 {
		return models.NewValidationError("invalid quantity", map[string]string{"quantity": "gt"})
	}
	available, err := l.store.GetBalance(ctx, itemId, fromLocationId)
	if err != nil {
		return err
	}
	if available < qty {
		return models.NewInsufficientStockError(itemId, fromLocationId, available, qty)
	}
	return nil
}

// Transfer moves qty atomically or changes nothing.
func (l *Ledger) Transfer(ctx context.Context, itemId, fromLocationId, toLocationId, qty int) error {
	return l.commitTransfer(ctx, itemId, fromLocationId, toLocationId, qty, func(ctx context.Context) error {
		return l.store.Transfer(ctx, itemId, fromLocationId, toLocationId, qty)
	})
}

// commitTransfer checks the source under both pair locks and then runs apply, which must
// perform the move in a single store transaction (alone or together with other writes).
func (l *Ledger) commitTransfer(ctx context.Context, itemId, fromLocationId, toLocationId, qty int, apply func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "Ledger.Transfer", trace.WithAttributes(
		attribute.Int("item_id", itemId),
		attribute.Int("from_location_id", fromLocationId),
		attribute.Int("to_location_id", toLocationId),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	err := l.withPairs(ctx, itemId, []int{fromLocationId, toLocationId}, func(ctx context.Context) error {
		if err := l.reserve(ctx, itemId, fromLocationId, qty); err != nil {
			return err
		}
		return apply(ctx)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Adjust sets the absolute quantity at one location, for direct catalog edits.
func (l *Ledger) Adjust(ctx context.Context, itemId, locationId, quantity int) (*models.StockBalance, error) {
	var balance *models.StockBalance
	err := l.commitAdjust(ctx, itemId, locationId, quantity, func(ctx context.Context) error {
		var err error
		balance, err = l.store.SetBalance(ctx, itemId, locationId, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// commitAdjust runs apply, which must set the balance in one store transaction, under the pair lock.
func (l *Ledger) commitAdjust(ctx context.Context, itemId, locationId, quantity int, apply func(ctx context.Context) error) error {
	if err := l.withPairs(ctx, itemId, []int{locationId}, apply); err != nil {
		return err
	}
	l.logger.WithFields(logrus.Fields{
		"field":       "Ledger",
		"item_id":     itemId,
		"location_id": locationId,
		"quantity":    quantity,
	}).Info("stock adjusted")
	return nil
}
