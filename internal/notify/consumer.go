package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/and161185/taskhub/internal/model"
)

// ErrNotConnected is returned by Consume when the broker is unavailable.
var ErrNotConnected = errors.New("broker not connected")

// Handler processes one decoded assignment event.
type Handler func(ctx context.Context, ev model.AssignmentEvent) error

// LogHandler returns a Handler that only logs the event.
func LogHandler(log *zap.Logger) Handler {
	return func(_ context.Context, ev model.AssignmentEvent) error {
		log.Info("task assignment received",
			zap.Stringer("user_id", ev.UserID),
			zap.Stringer("task_id", ev.TaskID),
			zap.String("title", ev.TaskTitle),
			zap.Time("ts", ev.Timestamp),
		)
		return nil
	}
}

// Consume drains the notification queue on a dedicated channel with manual
// acknowledgement until ctx is done or the broker closes the delivery stream.
// Every delivery is settled exactly once: handled events are acked, malformed
// payloads and handler errors are rejected without requeue.
func (p *Publisher) Consume(ctx context.Context, h Handler) error {
	if !p.Available() {
		return ErrNotConnected
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer p.closeQuietly("consumer channel", ch.Close)

	deliveries, err := ch.Consume(p.cfg.Queue, "taskhub-consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", p.cfg.Queue, err)
	}
	p.log.Info("consumer started", zap.String("queue", p.cfg.Queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				p.log.Info("delivery stream closed")
				return nil
			}
			p.handleDelivery(ctx, d, h)
		}
	}
}

func (p *Publisher) handleDelivery(ctx context.Context, d amqp.Delivery, h Handler) {
	var ev model.AssignmentEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		p.log.Warn("malformed notification", zap.Uint64("tag", d.DeliveryTag), zap.Error(err))
		if err := d.Reject(false); err != nil {
			p.log.Warn("reject", zap.Error(err))
		}
		return
	}
	if err := h(ctx, ev); err != nil {
		p.log.Warn("notification handler failed", zap.Stringer("task_id", ev.TaskID), zap.Error(err))
		if err := d.Nack(false, false); err != nil {
			p.log.Warn("nack", zap.Error(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		p.log.Warn("ack", zap.Error(err))
	}
}
