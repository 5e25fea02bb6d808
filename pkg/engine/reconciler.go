package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/logging"
	"github.com/xucheng2024/hour-trade/pkg/model"
)

// Reconciler repairs drift between ledger and store in both directions: it
// drops ledger entries whose row reached a terminal state elsewhere, and
// re-adopts unsold rows the ledger lost across a restart. Reconcile errors are
// logged and counted, never fatal.
type Reconciler struct {
	engine *Engine

	mu       sync.Mutex
	lastDeep time.Time

	running atomic.Bool
}

func NewReconciler(e *Engine) *Reconciler {
	return &Reconciler{engine: e}
}

// RunOnce performs one reconcile pass. Overlapping invocations collapse into
// one.
func (r *Reconciler) RunOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer r.running.Store(false)

	// One id per pass keeps a pass's log lines correlatable.
	ctx = logging.WithRequestID(ctx, uuid.NewString())

	e := r.engine
	r.syncLedger(ctx)
	r.recoverOrders(ctx, e.cfg.RecoveryWindow, e.cfg.RecoveryLimit)

	if n, err := e.intents.PurgeExpired(ctx, e.cfg.IntentTTL); err != nil {
		e.log.Warn(ctx, "intent purge failed", zap.Error(err))
	} else if n > 0 {
		e.log.Info(ctx, "expired intent markers purged", zap.Int("count", n))
	}

	r.maybeDeepRecover(ctx)
	e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))
}

// syncLedger walks the live entries against their store rows and evicts the
// ones that already finished, so a slot blocked by a stale entry reopens.
func (r *Reconciler) syncLedger(ctx context.Context) {
	e := r.engine
	entries := e.ledger.Snapshot()
	if len(entries) == 0 {
		return
	}

	ordIDs := make([]string, 0, len(entries))
	for _, en := range entries {
		ordIDs = append(ordIDs, en.OrdID)
	}
	rows, err := e.orders.GetByOrdIDs(ctx, ordIDs, e.cfg.StrategyTag)
	if err != nil {
		e.metrics.ReconcilerFailures.Inc()
		e.log.Warn(ctx, "ledger sync query failed", zap.Error(err))
		return
	}
	byOrdID := make(map[string]*model.Order, len(rows))
	for _, row := range rows {
		byOrdID[row.OrdID] = row
	}

	now := e.now()
	for _, en := range entries {
		row, ok := byOrdID[en.OrdID]
		if !ok {
			e.log.Warn(ctx, "ledger entry has no store row",
				zap.String("inst_id", en.InstID), zap.String("ord_id", en.OrdID))
			continue
		}
		switch {
		case row.IsTerminal():
			if e.ledger.RemoveIfOrder(en.InstID, en.OrdID) {
				e.metrics.ReconcilerRepairs.WithLabelValues("stale_ledger").Inc()
				e.log.Info(ctx, "stale ledger entry removed",
					zap.String("inst_id", en.InstID), zap.String("ord_id", en.OrdID),
					zap.String("state", string(row.State)))
			}
		case en.State == model.OrderStatePlaced && now.Sub(en.PlacedAt) > e.cfg.OrderTimeout+time.Minute:
			// The fill check never completed; run it again.
			e.checkFillTimeout(ctx, en.InstID, en.OrdID)
		case row.Sellable() && now.After(row.SellTime):
			e.sellPosition(ctx, en.InstID)
		}
	}
}

// recoverOrders re-adopts unsold rows within the lookback window that the
// ledger does not track, typically after a crash or restart.
func (r *Reconciler) recoverOrders(ctx context.Context, window time.Duration, limit int) {
	e := r.engine
	now := e.now()
	rows, err := e.orders.UnsoldSince(ctx, e.cfg.StrategyTag, now.Add(-window), limit)
	if err != nil {
		e.metrics.ReconcilerFailures.Inc()
		e.log.Warn(ctx, "order recovery query failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		if e.ledger.Has(row.InstID) {
			continue
		}
		r.adoptRow(ctx, row, now)
	}
}

// adoptRow rebuilds one ledger entry from a store row and resumes whatever
// step the order was in when tracking stopped.
func (r *Reconciler) adoptRow(ctx context.Context, row *model.Order, now time.Time) {
	e := r.engine
	entry := &Entry{
		InstID:   row.InstID,
		OrdID:    row.OrdID,
		State:    row.State,
		Price:    row.Price,
		Size:     row.Size,
		PlacedAt: row.CreateTime,
		SellAt:   row.SellTime,
	}
	if row.Sellable() {
		entry.Price = row.FillPrice
		entry.Size = row.FillSize
	}

	if row.State == model.OrderStatePlaced {
		deadline := row.CreateTime.Add(e.cfg.OrderTimeout)
		if now.Before(deadline) {
			entry.timeoutTimer = e.afterFunc(deadline.Sub(now), func() {
				e.checkFillTimeout(context.Background(), row.InstID, row.OrdID)
			})
			e.ledger.Put(entry)
		} else {
			e.ledger.Put(entry)
			e.checkFillTimeout(ctx, row.InstID, row.OrdID)
		}
	} else {
		e.ledger.Put(entry)
		if now.After(row.SellTime) {
			// The bar close that should have sold this position already
			// passed.
			e.sellPosition(ctx, row.InstID)
		}
	}

	e.metrics.ReconcilerRepairs.WithLabelValues("recovered_order").Inc()
	e.log.Info(ctx, "order re-adopted from store",
		zap.String("inst_id", row.InstID), zap.String("ord_id", row.OrdID),
		zap.String("state", string(row.State)))
}

// maybeDeepRecover widens the lookback once per deep interval to catch rows
// the normal window ages out of.
func (r *Reconciler) maybeDeepRecover(ctx context.Context) {
	e := r.engine
	now := e.now()

	r.mu.Lock()
	due := now.Sub(r.lastDeep) >= e.cfg.DeepRecoveryInterval
	if due {
		r.lastDeep = now
	}
	r.mu.Unlock()
	if !due {
		return
	}

	e.log.Info(ctx, "deep recovery pass",
		zap.Duration("window", e.cfg.DeepRecoveryWindow))
	r.recoverOrders(ctx, e.cfg.DeepRecoveryWindow, e.cfg.DeepRecoveryLimit)
}
