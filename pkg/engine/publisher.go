package engine

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

// EventPublisher fans lifecycle transitions out to the audit stream. It is
// fire-and-forget: a publish failure never blocks or fails the trading path.
type EventPublisher interface {
	Publish(ev *model.OrderEvent)
}

type NatsPublisher struct {
	js      nats.JetStreamContext
	subject string
}

func NewNatsPublisher(js nats.JetStreamContext, subject string) *NatsPublisher {
	return &NatsPublisher{js: js, subject: subject}
}

func (p *NatsPublisher) Publish(ev *model.OrderEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		zap.S().Warnw("order event marshal failed", "event_id", ev.EventID, "err", err)
		return
	}
	if _, err := p.js.PublishAsync(p.subject, raw); err != nil {
		zap.S().Warnw("order event publish failed", "event_id", ev.EventID, "err", err)
	}
}

// NoopPublisher is used when no audit stream is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(*model.OrderEvent) {}
