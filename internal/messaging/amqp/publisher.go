// Package amqp publishes order events to RabbitMQ.
package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/storefront/internal/domain/order"
)

// DefaultQueue receives order placed events when no queue is configured.
const DefaultQueue = "orders"

// EventOrderPlaced is set as the message type of order placed events.
const EventOrderPlaced = "order.placed"

var _ order.EventPublisher = (*Publisher)(nil)

// channel is the subset of *amqp.Channel used by Publisher.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends order events to a durable queue on the default exchange.
type Publisher struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch channel
}

// Dial connects to the broker, opens a channel and declares queue.
func Dial(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", queue, err)
	}
	return &Publisher{conn: conn, queue: queue, ch: ch}, nil
}

// PublishOrderPlaced sends e as a persistent JSON message.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, e order.Placed) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.OrderID,
		Type:         EventOrderPlaced,
		Timestamp:    e.PlacedAt,
		Body:         MarshalPlaced(e),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publishing order %s: %w", e.OrderID, err)
	}
	return nil
}

// Check reports whether the broker connection is still open.
func (p *Publisher) Check(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.ch != nil {
		if cerr := p.ch.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = fmt.Errorf("closing rabbitmq channel: %w", cerr)
		}
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) && err == nil {
			err = fmt.Errorf("closing rabbitmq connection: %w", cerr)
		}
	}
	return err
}

// MarshalPlaced encodes an order placed event body.
func MarshalPlaced(e order.Placed) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("orderId")
	enc.Str(e.OrderID)
	enc.FieldStart("userId")
	enc.Str(e.UserID)
	enc.FieldStart("storeId")
	enc.Str(e.StoreID)
	enc.FieldStart("total")
	enc.Num(jx.Num(e.Total.StringFixed(2)))
	enc.FieldStart("paymentMethod")
	enc.Str(string(e.PaymentMethod))
	if e.CouponCode != "" {
		enc.FieldStart("couponCode")
		enc.Str(e.CouponCode)
	}
	enc.FieldStart("items")
	enc.ArrStart()
	for _, item := range e.Items {
		enc.ObjStart()
		enc.FieldStart("productId")
		enc.Str(item.ProductID)
		enc.FieldStart("quantity")
		enc.Int(item.Quantity)
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("placedAt")
	enc.Str(e.PlacedAt.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
	return enc.Bytes()
}
