package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/exchange"
	"github.com/xucheng2024/hour-trade/pkg/model"
)

// checkFillTimeout runs once per order when the fill window expires: a filled
// order stays and is annotated with its observed fill, an unfilled one is
// canceled on the exchange and released.
func (e *Engine) checkFillTimeout(ctx context.Context, instID, ordID string) {
	entry, ok := e.ledger.Get(instID)
	if !ok || entry.OrdID != ordID {
		return
	}
	if entry.State != model.OrderStatePlaced {
		// The post-place probe or the reconciler already resolved the fill.
		return
	}

	st, err := e.gw.GetOrderStatus(ctx, instID, ordID)
	if err != nil {
		if exchange.IsKind(err, exchange.KindNotFound) {
			// The exchange no longer knows the order; release the slot and
			// mark the row canceled so it never resurrects through recovery.
			e.finishCancel(ctx, instID, ordID)
			return
		}
		e.log.Warn(ctx, "fill check failed, deferring to reconciler",
			zap.String("inst_id", instID), zap.String("ord_id", ordID), zap.Error(err))
		return
	}

	switch {
	case st.FillSize.IsPositive():
		e.applyFill(ctx, instID, ordID, st)
	case st.State == model.OrderStateCanceled:
		e.finishCancel(ctx, instID, ordID)
	default:
		e.cancelUnfilled(ctx, instID, ordID)
	}
}

func (e *Engine) cancelUnfilled(ctx context.Context, instID, ordID string) {
	if err := e.gw.CancelOrder(ctx, instID, ordID); err != nil {
		switch exchange.KindOf(err) {
		case exchange.KindAlreadyTerminal:
			// Cancel raced a terminal transition; requery to learn which
			// side won. Only a confirmed answer may change the row: writing
			// canceled on a guess would abandon a filled position in a
			// terminal state no pass ever revisits.
			st, err2 := e.gw.GetOrderStatus(ctx, instID, ordID)
			if err2 != nil {
				e.log.Warn(ctx, "cancel reported terminal but status unknown, deferring to reconciler",
					zap.String("inst_id", instID), zap.String("ord_id", ordID), zap.Error(err2))
				return
			}
			if st.FillSize.IsPositive() {
				e.applyFill(ctx, instID, ordID, st)
				return
			}
			if st.State != model.OrderStateCanceled {
				e.log.Warn(ctx, "cancel reported terminal but status disagrees, deferring to reconciler",
					zap.String("inst_id", instID), zap.String("ord_id", ordID),
					zap.String("state", string(st.State)))
				return
			}
		case exchange.KindNotFound:
			// Treat as canceled.
		default:
			e.log.Warn(ctx, "cancel failed, deferring to reconciler",
				zap.String("inst_id", instID), zap.String("ord_id", ordID), zap.Error(err))
			return
		}
	}
	e.finishCancel(ctx, instID, ordID)
}

func (e *Engine) finishCancel(ctx context.Context, instID, ordID string) {
	if err := e.orders.MarkCanceled(ctx, instID, ordID, e.cfg.StrategyTag); err != nil {
		e.log.Error(ctx, "cancel persisted on exchange but store update failed",
			zap.String("inst_id", instID), zap.String("ord_id", ordID),
			zap.Bool("operator_alert", true), zap.Error(err))
		// Keep the entry; the reconciler retries the store write path.
		return
	}
	if !e.ledger.RemoveIfOrder(instID, ordID) {
		return
	}
	e.metrics.OrdersCanceled.Inc()
	e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))
	e.events.Publish(model.NewOrderEvent(&model.Order{
		InstID: instID, StrategyTag: e.cfg.StrategyTag, OrdID: ordID,
	}, model.EventKindCanceled, e.now()))
	e.log.Info(ctx, "unfilled buy canceled",
		zap.String("inst_id", instID), zap.String("ord_id", ordID))
}
