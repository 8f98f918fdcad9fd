package sms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boutique/internal/breaker"
)

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	calls []publishCall
	err   error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestAMQPSenderPublishes(t *testing.T) {
	ch := &fakeChannel{}
	sender := NewAMQPSender(ch, "sms.events")

	err := sender.Send(context.Background(), Message{To: "+919876543210", Body: "Your code is 123456", Kind: KindOTP})
	require.NoError(t, err)
	require.Len(t, ch.calls, 1)

	call := ch.calls[0]
	assert.Equal(t, "sms.events", call.exchange)
	assert.Equal(t, "sms.otp", call.key)
	assert.Equal(t, uint8(amqp.Persistent), call.msg.DeliveryMode)
	assert.NotEmpty(t, call.msg.MessageId)

	var body Message
	require.NoError(t, json.Unmarshal(call.msg.Body, &body))
	assert.Equal(t, "+919876543210", body.To)
}

func TestAMQPSenderOpensBreaker(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	sender := NewAMQPSender(ch, "sms.events")
	msg := Message{To: "+919876543210", Body: "x", Kind: KindOTP}

	for i := 0; i < int(breaker.DefaultSettings().ConsecutiveFailures); i++ {
		err := sender.Send(context.Background(), msg)
		require.Error(t, err)
		assert.False(t, breaker.IsOpen(err))
	}

	ch.err = nil
	err := sender.Send(context.Background(), msg)
	assert.True(t, breaker.IsOpen(err))
	assert.Empty(t, ch.calls)
}

func TestSendHonoursCancelledContext(t *testing.T) {
	ch := &fakeChannel{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewAMQPSender(ch, "x").Send(ctx, Message{Kind: KindOTP})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ch.calls)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "+********3210", Mask("+919876543210"))
	assert.Equal(t, "123", Mask("123"))
}
