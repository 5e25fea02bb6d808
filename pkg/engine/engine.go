package engine

import (
	"context"
	"time"

	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/exchange"
	"github.com/xucheng2024/hour-trade/pkg/logging"
	"github.com/xucheng2024/hour-trade/pkg/model"
	"github.com/xucheng2024/hour-trade/pkg/store"
)

const (
	numShards = 16
	queueSize = 65536
)

type Config struct {
	StrategyTag string
	TradeAmount decimal.Decimal

	OrderTimeout      time.Duration
	IntentTTL         time.Duration
	ReconcileInterval time.Duration

	RecoveryWindow time.Duration
	RecoveryLimit  int

	DeepRecoveryInterval time.Duration
	DeepRecoveryWindow   time.Duration
	DeepRecoveryLimit    int

	SellRetryAlertThreshold int

	LimitsFile string
	Blacklist  []string

	// SimulationMode synthesizes all exchange calls instead of sending them.
	SimulationMode bool
}

func (c *Config) applyDefaults() {
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 60 * time.Second
	}
	if c.IntentTTL <= 0 {
		c.IntentTTL = 60 * time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 5 * time.Minute
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = 24 * time.Hour
	}
	if c.RecoveryLimit <= 0 {
		c.RecoveryLimit = 100
	}
	if c.DeepRecoveryInterval <= 0 {
		c.DeepRecoveryInterval = 24 * time.Hour
	}
	if c.DeepRecoveryWindow <= 0 {
		c.DeepRecoveryWindow = 7 * 24 * time.Hour
	}
	if c.DeepRecoveryLimit <= 0 {
		c.DeepRecoveryLimit = 500
	}
	if c.SellRetryAlertThreshold <= 0 {
		c.SellRetryAlertThreshold = 10
	}
}

// Engine runs one strategy process: it consumes the two exchange streams,
// drives the order state machine and keeps ledger and store consistent.
type Engine struct {
	cfg Config

	gw      exchange.Gateway
	orders  store.IOrder
	ledger  *Ledger
	prices  *PriceBook
	limits  *Limits
	intents IntentStore
	events  EventPublisher
	metrics *Metrics
	log     *logging.Logger

	reconciler *Reconciler

	ticker *exchange.Stream
	candle *exchange.Stream

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewEngine(cfg Config, gw exchange.Gateway, repo store.IRepo, limits *Limits, intents IntentStore, events EventPublisher, metrics *Metrics, log *logging.Logger) *Engine {
	cfg.applyDefaults()
	if events == nil {
		events = NoopPublisher{}
	}
	e := &Engine{
		cfg:       cfg,
		gw:        gw,
		orders:    repo.Order(),
		ledger:    NewLedger(),
		prices:    NewPriceBook(),
		limits:    limits,
		intents:   intents,
		events:    events,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
	e.reconciler = NewReconciler(e)
	return e
}

// Prices exposes the price book as a source for the simulated gateway.
func (e *Engine) Prices() exchange.PriceSource {
	return e.prices
}

// SetGateway installs the exchange gateway. The simulated gateway needs the
// engine's price book, so it is built after the engine; call this before Run.
func (e *Engine) SetGateway(gw exchange.Gateway) {
	e.gw = gw
}

// AttachStreams hands the engine its two stream consumers.
func (e *Engine) AttachStreams(ticker, candle *exchange.Stream) {
	e.ticker = ticker
	e.candle = candle
}

// Run blocks until ctx is done. It performs the startup reconcile pass before
// consuming any stream event, so a restarted process re-adopts its positions
// before acting on new signals.
func (e *Engine) Run(ctx context.Context) error {
	e.initReferencePrices(ctx)
	e.reconciler.RunOnce(ctx)

	sq := shardqueue.NewShardQueue(numShards, queueSize)
	sq.Start(func(msg interface{}) error {
		if ev, ok := msg.(exchange.Event); ok {
			e.handleEvent(ctx, ev)
		}
		return nil
	})

	go e.ticker.Run(ctx)
	go e.candle.Run(ctx)

	reconcile := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.ticker.Events():
			sq.Shard(ev.Key(), ev)
		case ev := <-e.candle.Events():
			sq.Shard(ev.Key(), ev)
		case <-reconcile.C:
			go e.reconciler.RunOnce(ctx)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev exchange.Event) {
	switch v := ev.(type) {
	case exchange.PriceTick:
		e.onTick(ctx, v)
	case exchange.BarClose:
		e.onBarClose(ctx, v)
	case exchange.Disconnected:
		e.metrics.StreamReconnects.WithLabelValues(v.Channel).Inc()
	}
}

// onTick updates the price book and runs the buy decision. The decision-and-
// reserve step is guarded by the ledger lock plus the pending-intent marker;
// exchange calls happen outside the lock.
func (e *Engine) onTick(ctx context.Context, tick exchange.PriceTick) {
	if e.prices.Observe(tick.InstID, tick.Last, tick.TS) {
		// The first tick of the hour is the provisional reference; the real
		// hourly open replaces it once fetched.
		go e.refreshReference(ctx, tick.InstID, tick.TS)
	}

	ratio, ok := e.limits.Ratio(tick.InstID)
	if !ok {
		return
	}
	if e.ledger.Has(tick.InstID) {
		return
	}
	ref, ok := e.prices.Reference(tick.InstID)
	if !ok {
		// Fail closed: without a reference price a tick cannot trigger buys.
		return
	}
	limit, ok := buySignal(tick.Last, ref, ratio)
	if !ok {
		return
	}
	e.tryBuy(ctx, tick.InstID, limit)
}

func (e *Engine) tryBuy(ctx context.Context, instID string, limit decimal.Decimal) {
	acquired, err := e.intents.Acquire(ctx, instID, e.cfg.IntentTTL)
	if err != nil {
		e.log.Warn(ctx, "intent store unavailable, skipping buy",
			zap.String("inst_id", instID), zap.Error(err))
		return
	}
	if !acquired {
		return
	}

	// The store, not the ledger, decides whether an unsold order exists: the
	// ledger can be stale after a crash.
	if _, err := e.orders.ActiveByInstrument(ctx, instID, e.cfg.StrategyTag); err == nil {
		e.log.Warn(ctx, "unsold order in store but not in ledger, deferring to reconciler",
			zap.String("inst_id", instID))
		e.releaseIntent(instID)
		return
	} else if err != store.ErrOrderNotFound {
		e.log.Warn(ctx, "store check failed, skipping buy",
			zap.String("inst_id", instID), zap.Error(err))
		e.releaseIntent(instID)
		return
	}

	size := sizeFor(e.cfg.TradeAmount, limit)
	if !size.IsPositive() {
		e.releaseIntent(instID)
		return
	}

	ordID, err := e.gw.PlaceLimitBuy(ctx, instID, limit, size)
	if err != nil {
		e.releaseIntent(instID)
		switch exchange.KindOf(err) {
		case exchange.KindRejected, exchange.KindInsufficientBalance:
			e.metrics.BuyRejections.Inc()
			e.log.Warn(ctx, "buy rejected",
				zap.String("inst_id", instID), zap.String("price", limit.String()), zap.Error(err))
		default:
			e.log.Warn(ctx, "buy failed, retrying on next signal",
				zap.String("inst_id", instID), zap.Error(err))
		}
		return
	}

	now := e.now()
	order := &model.Order{
		InstID:      instID,
		StrategyTag: e.cfg.StrategyTag,
		OrdID:       ordID,
		Side:        model.OrderSideBuy,
		Type:        model.OrderTypeLimit,
		State:       model.OrderStatePlaced,
		Price:       limit,
		Size:        size,
		CreateTime:  now,
		SellTime:    nextHourClose(now),
	}
	if err := e.orders.Create(ctx, order); err != nil {
		// The order is live on the exchange but the row is missing; keep
		// tracking it in memory and alert the operator.
		e.log.Error(ctx, "order placed but store insert failed",
			zap.String("inst_id", instID), zap.String("ord_id", ordID),
			zap.Bool("operator_alert", true), zap.Error(err))
	}

	e.trackOrder(order)
	e.releaseIntent(instID)

	e.metrics.OrdersPlaced.Inc()
	e.events.Publish(model.NewOrderEvent(order, model.EventKindPlaced, now))
	e.log.Info(ctx, "buy placed",
		zap.String("inst_id", instID), zap.String("ord_id", ordID),
		zap.String("price", limit.String()), zap.String("size", size.String()))

	// A limit priced above the market fills immediately; probe once so the
	// observed fill values land without waiting for the timeout check.
	if st, err := e.gw.GetOrderStatus(ctx, instID, ordID); err == nil && st.FillSize.IsPositive() {
		e.applyFill(ctx, instID, ordID, st)
	}
}

// trackOrder inserts a ledger entry and arms the one-shot fill timeout owned
// by the order.
func (e *Engine) trackOrder(order *model.Order) {
	instID, ordID := order.InstID, order.OrdID
	entry := &Entry{
		InstID:   instID,
		OrdID:    ordID,
		State:    order.State,
		Price:    order.Price,
		Size:     order.Size,
		PlacedAt: order.CreateTime,
		SellAt:   order.SellTime,
	}
	if order.State == model.OrderStatePlaced {
		entry.timeoutTimer = e.afterFunc(e.cfg.OrderTimeout, func() {
			e.checkFillTimeout(context.Background(), instID, ordID)
		})
	}
	e.ledger.Put(entry)
	e.metrics.ActiveOrders.Set(float64(e.ledger.Len()))
}

func (e *Engine) releaseIntent(instID string) {
	if err := e.intents.Release(context.Background(), instID); err != nil {
		// The marker's TTL will clear it.
		zap.S().Debugw("intent release failed", "inst_id", instID, "err", err)
	}
}

// applyFill writes the observed fill values to store and ledger. Safe to call
// more than once for the same order.
func (e *Engine) applyFill(ctx context.Context, instID, ordID string, st *exchange.OrderStatus) {
	state := model.OrderStatePartiallyFilled
	if st.State == model.OrderStateFilled {
		state = model.OrderStateFilled
	}

	fillTime := st.FillTime
	if fillTime.IsZero() {
		fillTime = e.now()
	}
	sellAt := nextHourClose(fillTime)

	if err := e.orders.UpdateFill(ctx, instID, ordID, e.cfg.StrategyTag, state, st.FillPrice, st.FillSize, sellAt); err != nil {
		e.log.Error(ctx, "fill update failed",
			zap.String("inst_id", instID), zap.String("ord_id", ordID), zap.Error(err))
		return
	}

	first := false
	e.ledger.Update(instID, ordID, func(en *Entry) {
		first = en.State == model.OrderStatePlaced
		en.State = state
		en.Price = st.FillPrice
		en.Size = st.FillSize
		en.SellAt = sellAt
	})
	if first {
		e.metrics.OrdersFilled.Inc()
		kind := model.EventKindFilled
		if state == model.OrderStatePartiallyFilled {
			kind = model.EventKindPartFilled
		}
		e.events.Publish(model.NewOrderEvent(&model.Order{
			InstID: instID, StrategyTag: e.cfg.StrategyTag, OrdID: ordID,
			FillPrice: st.FillPrice, FillSize: st.FillSize,
		}, kind, e.now()))
		e.log.Info(ctx, "buy filled",
			zap.String("inst_id", instID), zap.String("ord_id", ordID),
			zap.String("fill_price", st.FillPrice.String()),
			zap.String("fill_size", st.FillSize.String()))
	}
}

func (e *Engine) refreshReference(ctx context.Context, instID string, ts time.Time) {
	open, err := e.gw.HourOpen(ctx, instID)
	if err != nil || !open.IsPositive() {
		return
	}
	e.prices.SetReference(instID, open, ts.Truncate(time.Hour))
}

// initReferencePrices seeds the hourly-open reference price for every
// instrument; instruments that fail stay fail-closed until the next hour's
// first tick rolls their reference.
func (e *Engine) initReferencePrices(ctx context.Context) {
	insts := e.limits.Instruments()
	hour := e.now().Truncate(time.Hour)
	count := 0
	for _, instID := range insts {
		open, err := e.gw.HourOpen(ctx, instID)
		if err == nil && open.IsPositive() {
			e.prices.SetReference(instID, open, hour)
			count++
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	e.log.Info(ctx, "reference prices initialized",
		zap.Int("ok", count), zap.Int("total", len(insts)))
}
