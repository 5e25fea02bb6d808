package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

var ErrOrderNotFound = errors.New("order not found")

type IRepo interface {
	Order() IOrder
	OrderEvent() IOrderEvent
}

// IOrder is the durable store access for order rows. Every query filters by
// strategy tag; the table is shared by all strategy processes.
type IOrder interface {
	Create(ctx context.Context, order *model.Order) error
	Get(ctx context.Context, instID, ordID, tag string) (*model.Order, error)
	GetByOrdIDs(ctx context.Context, ordIDs []string, tag string) ([]*model.Order, error)
	ActiveByInstrument(ctx context.Context, instID, tag string) (*model.Order, error)
	UpdateFill(ctx context.Context, instID, ordID, tag string, state model.OrderState, fillPrice, fillSize decimal.Decimal, sellTime time.Time) error
	MarkCanceled(ctx context.Context, instID, ordID, tag string) error
	MarkSold(ctx context.Context, instID, ordID, tag, sellOrdID string, sellPrice decimal.Decimal) (bool, error)
	UnsoldSince(ctx context.Context, tag string, cutoff time.Time, limit int) ([]*model.Order, error)
}

type IOrderEvent interface {
	Create(ctx context.Context, record *model.OrderEvent) (*model.OrderEvent, error)
	BulkCreate(ctx context.Context, records []*model.OrderEvent) ([]*model.OrderEvent, error)
}

type Repo struct {
	ordersDB *gorm.DB
}

func NewRepo(ordersDB *gorm.DB) IRepo {
	return &Repo{
		ordersDB: ordersDB,
	}
}

func (r *Repo) Order() IOrder {
	return NewOrderSQLRepo(r.ordersDB)
}

func (r *Repo) OrderEvent() IOrderEvent {
	return NewOrderEventSQLRepo(r.ordersDB)
}
