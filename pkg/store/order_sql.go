package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

var unsoldStates = []model.OrderState{
	model.OrderStatePlaced,
	model.OrderStatePartiallyFilled,
	model.OrderStateFilled,
}

var sellableStates = []model.OrderState{
	model.OrderStatePartiallyFilled,
	model.OrderStateFilled,
}

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (s *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *OrderSQLRepo) Create(ctx context.Context, order *model.Order) error {
	return s.dbWithContext(ctx).Create(order).Error
}

func (s *OrderSQLRepo) Get(ctx context.Context, instID, ordID, tag string) (*model.Order, error) {
	var order model.Order
	err := s.dbWithContext(ctx).
		Where("inst_id = ? AND ord_id = ? AND strategy_tag = ?", instID, ordID, tag).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderSQLRepo) GetByOrdIDs(ctx context.Context, ordIDs []string, tag string) ([]*model.Order, error) {
	if len(ordIDs) == 0 {
		return nil, nil
	}
	var orders []*model.Order
	err := s.dbWithContext(ctx).
		Where("ord_id IN ? AND strategy_tag = ?", ordIDs, tag).
		Find(&orders).Error
	return orders, err
}

// ActiveByInstrument returns the single unsold order for an instrument under
// a strategy tag, or ErrOrderNotFound. This is the query the buy path uses to
// enforce "no overlapping positions" against the store, not the ledger.
func (s *OrderSQLRepo) ActiveByInstrument(ctx context.Context, instID, tag string) (*model.Order, error) {
	var order model.Order
	err := s.dbWithContext(ctx).
		Where("inst_id = ? AND strategy_tag = ? AND state IN ?", instID, tag, unsoldStates).
		Order("create_time DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateFill overwrites the row with the fill values observed from the
// exchange. Terminal rows are left untouched.
func (s *OrderSQLRepo) UpdateFill(ctx context.Context, instID, ordID, tag string, state model.OrderState, fillPrice, fillSize decimal.Decimal, sellTime time.Time) error {
	if state != model.OrderStateFilled && state != model.OrderStatePartiallyFilled {
		return model.ErrInvalidTransition
	}
	return s.dbWithContext(ctx).Model(&model.Order{}).
		Where("inst_id = ? AND ord_id = ? AND strategy_tag = ? AND state IN ?", instID, ordID, tag, unsoldStates).
		Updates(map[string]interface{}{
			"state":      state,
			"fill_price": fillPrice,
			"fill_size":  fillSize,
			"sell_time":  sellTime,
		}).Error
}

func (s *OrderSQLRepo) MarkCanceled(ctx context.Context, instID, ordID, tag string) error {
	return s.dbWithContext(ctx).Model(&model.Order{}).
		Where("inst_id = ? AND ord_id = ? AND strategy_tag = ? AND state IN ?", instID, ordID, tag, unsoldStates).
		Update("state", model.OrderStateCanceled).Error
}

// MarkSold is a conditional single-row update: it only succeeds while the row
// is still in a sellable state, so a duplicate sell path observes updated ==
// false instead of overwriting a terminal row.
func (s *OrderSQLRepo) MarkSold(ctx context.Context, instID, ordID, tag, sellOrdID string, sellPrice decimal.Decimal) (bool, error) {
	res := s.dbWithContext(ctx).Model(&model.Order{}).
		Where("inst_id = ? AND ord_id = ? AND strategy_tag = ? AND state IN ?", instID, ordID, tag, sellableStates).
		Updates(map[string]interface{}{
			"state":       model.OrderStateSold,
			"sell_ord_id": sellOrdID,
			"sell_price":  sellPrice,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UnsoldSince lists unsold rows created after cutoff, newest first. The
// reconciler uses it to re-adopt positions the process lost across a restart.
func (s *OrderSQLRepo) UnsoldSince(ctx context.Context, tag string, cutoff time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := s.dbWithContext(ctx).
		Where("strategy_tag = ? AND state IN ? AND create_time > ?", tag, unsoldStates, cutoff).
		Order("create_time DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
