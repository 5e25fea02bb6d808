package worker

import (
	"context"
	"encoding/json"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/model"
	"github.com/xucheng2024/hour-trade/pkg/store"
)

// Worker drains the audit stream into the order_events table. Event ids are
// deterministic, so redelivered messages collapse into the existing row.
type Worker struct {
	orderEvent store.IOrderEvent
}

func NewWorker(repo store.IRepo) *Worker {
	return &Worker{
		orderEvent: repo.OrderEvent(),
	}
}

func (w *Worker) StartConsumer(ctx context.Context, js nats.JetStreamContext, subject, durable string) error {
	cons, err := js.PullSubscribe(subject, durable)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := cons.Fetch(10, nats.Context(ctx))
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				continue
			}
			if err == nats.ErrTimeout {
				continue
			}
			zap.S().Warnf("fetch error: %v", err)
			continue
		}

		for _, msg := range msgs {
			var ev model.OrderEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				zap.S().Warnf("unmarshal err: %v", err)
				_ = msg.Ack()
				continue
			}
			if err := w.handleEvent(ctx, ev); err != nil {
				zap.S().Warnf("handleEvent err: %v", err)
				continue
			}
			_ = msg.Ack()
		}
	}
}

func (w *Worker) handleEvent(ctx context.Context, ev model.OrderEvent) error {
	_, err := w.orderEvent.Create(ctx, &ev)
	return err
}
