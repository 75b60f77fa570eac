package amqp

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func placedEvent() order.Placed {
	return order.Placed{
		OrderID:       "o1",
		UserID:        "u1",
		StoreID:       "s1",
		Total:         decimal.RequireFromString("23"),
		PaymentMethod: order.PaymentCashOnDelivery,
		CouponCode:    "SAVE5",
		Items:         []order.CartItem{{ProductID: "p1", Quantity: 2}},
		PlacedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishOrderPlaced(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{queue: "orders", ch: ch}

	require.NoError(t, p.PublishOrderPlaced(context.Background(), placedEvent()))
	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "", ch.exchange)
	assert.Equal(t, "orders", ch.key)

	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "o1", msg.MessageId)
	assert.Equal(t, EventOrderPlaced, msg.Type)
}

func TestPublishOrderPlaced_Error(t *testing.T) {
	p := &Publisher{queue: "orders", ch: &fakeChannel{err: amqp.ErrClosed}}

	err := p.PublishOrderPlaced(context.Background(), placedEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
	assert.Contains(t, err.Error(), "o1")
}

func TestMarshalPlaced(t *testing.T) {
	body := MarshalPlaced(placedEvent())
	require.True(t, jx.Valid(body))

	fields := map[string]string{}
	var items int
	require.NoError(t, jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				items++
				return d.Skip()
			})
		case "total":
			n, err := d.Num()
			if err != nil {
				return err
			}
			fields[key] = n.String()
			return nil
		default:
			s, err := d.Str()
			if err != nil {
				return err
			}
			fields[key] = s
			return nil
		}
	}))

	assert.Equal(t, "o1", fields["orderId"])
	assert.Equal(t, "s1", fields["storeId"])
	assert.Equal(t, "23.00", fields["total"])
	assert.Equal(t, "COD", fields["paymentMethod"])
	assert.Equal(t, "SAVE5", fields["couponCode"])
	assert.Equal(t, "2025-06-01T12:00:00Z", fields["placedAt"])
	assert.Equal(t, 1, items)
}

func TestMarshalPlaced_NoCoupon(t *testing.T) {
	e := placedEvent()
	e.CouponCode = ""
	assert.NotContains(t, string(MarshalPlaced(e)), "couponCode")
}

func TestCheck_NoConnection(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{}}
	assert.Error(t, p.Check(context.Background()))
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
