package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/exchange"
	"github.com/xucheng2024/hour-trade/pkg/model"
	"github.com/xucheng2024/hour-trade/pkg/store"
)

func (e *Engine) onBarClose(ctx context.Context, bar exchange.BarClose) {
	if !bar.Confirmed {
		return
	}
	if !e.ledger.Has(bar.InstID) {
		return
	}
	e.sellPosition(ctx, bar.InstID)
}

// sellPosition liquidates the position for an instrument at market. The store
// row is re-read first and is the final word: a row already sold or canceled
// means some other path won, and this call only cleans up the ledger.
func (e *Engine) sellPosition(ctx context.Context, instID string) {
	entry, ok := e.ledger.beginSell(instID)
	if !ok {
		return
	}
	defer e.ledger.endSell(instID, entry.OrdID)

	row, err := e.orders.Get(ctx, instID, entry.OrdID, e.cfg.StrategyTag)
	if err != nil {
		if err == store.ErrOrderNotFound {
			e.log.Warn(ctx, "ledger entry has no store row, dropping",
				zap.String("inst_id", instID), zap.String("ord_id", entry.OrdID))
			e.ledger.RemoveIfOrder(instID, entry.OrdID)
			e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))
			return
		}
		e.log.Warn(ctx, "store read failed, sell retried on next bar close",
			zap.String("inst_id", instID), zap.String("ord_id", entry.OrdID), zap.Error(err))
		return
	}

	switch {
	case row.State == model.OrderStateSold, row.State == model.OrderStateCanceled:
		e.ledger.RemoveIfOrder(instID, entry.OrdID)
		e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))
		return
	case !row.Sellable():
		// Still placed with no observed fill; the fill check resolves it and
		// a later pass sells whatever filled.
		e.log.Debug(ctx, "bar close before fill resolution",
			zap.String("inst_id", instID), zap.String("ord_id", entry.OrdID),
			zap.String("state", string(row.State)))
		return
	}

	sellOrdID, sellPrice, err := e.gw.PlaceMarketSell(ctx, instID, entry.OrdID, row.FillSize)
	if err != nil {
		e.recordSellFailure(ctx, instID, entry.OrdID, row, err)
		return
	}

	// The sell executed; the store write must land so recovery never sells
	// this position a second time.
	var updated bool
	err = backoff.Retry(func() error {
		var err error
		updated, err = e.orders.MarkSold(ctx, instID, entry.OrdID, e.cfg.StrategyTag, sellOrdID, sellPrice)
		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 4))
	if err != nil {
		e.log.Error(ctx, "position sold but store update failed",
			zap.String("inst_id", instID), zap.String("ord_id", entry.OrdID),
			zap.String("sell_ord_id", sellOrdID),
			zap.String("sell_price", sellPrice.String()),
			zap.Bool("operator_alert", true), zap.Error(err))
		return
	}
	if !updated {
		// The row reached a terminal state between the read and the write.
		e.ledger.RemoveIfOrder(instID, entry.OrdID)
		e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))
		return
	}

	e.ledger.RemoveIfOrder(instID, entry.OrdID)
	e.metrics.OrdersSold.Inc()
	e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))

	row.State = model.OrderStateSold
	row.SellOrdID = sellOrdID
	row.SellPrice = sellPrice
	e.events.Publish(model.NewOrderEvent(row, model.EventKindSold, e.now()))
	e.log.Info(ctx, "position sold",
		zap.String("inst_id", instID), zap.String("ord_id", entry.OrdID),
		zap.String("sell_ord_id", sellOrdID),
		zap.String("size", row.FillSize.String()),
		zap.String("sell_price", sellPrice.String()))
}

// recordSellFailure keeps the entry for retry on the next confirmed bar close
// and escalates once the failure streak passes the alert threshold.
func (e *Engine) recordSellFailure(ctx context.Context, instID, ordID string, row *model.Order, cause error) {
	e.metrics.SellFailures.Inc()

	attempts := 0
	e.ledger.Update(instID, ordID, func(en *Entry) {
		en.SellAttempts++
		en.LastSellAttempt = e.now()
		attempts = en.SellAttempts
	})

	e.events.Publish(model.NewOrderEvent(row, model.EventKindSellFailed, e.now()))

	fields := []zap.Field{
		zap.String("inst_id", instID), zap.String("ord_id", ordID),
		zap.Int("attempts", attempts), zap.Error(cause),
	}
	if attempts >= e.cfg.SellRetryAlertThreshold {
		e.log.Error(ctx, "sell keeps failing", append(fields, zap.Bool("operator_alert", true))...)
		return
	}
	e.log.Warn(ctx, "sell failed, will retry on next bar close", fields...)
}
