package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/streadway/amqp"

	"boutique/internal/breaker"
)

// Publisher is satisfied by *amqp.Channel.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes SMS requests to a topic exchange consumed by the
// delivery worker. Routing keys are "sms.<kind>".
type AMQPSender struct {
	mu       sync.Mutex
	channel  Publisher
	exchange string
	cb       *gobreaker.CircuitBreaker[struct{}]
}

func NewAMQPSender(channel Publisher, exchange string) *AMQPSender {
	return &AMQPSender{
		channel:  channel,
		exchange: exchange,
		cb:       breaker.New[struct{}]("amqp-sms", breaker.DefaultSettings()),
	}
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sms serialization error: %w", err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"kind": msg.Kind},
	}

	_, err = s.cb.Execute(func() (struct{}, error) {
		// amqp channels are not safe for concurrent publishing
		s.mu.Lock()
		defer s.mu.Unlock()
		return struct{}{}, s.channel.Publish(s.exchange, "sms."+msg.Kind, false, false, publishing)
	})
	if err != nil {
		return fmt.Errorf("sms publish error: %w", err)
	}
	return nil
}

// DialAMQP connects with retries and declares the durable topic exchange.
func DialAMQP(url, exchange string, attempts int, delay time.Duration) (*amqp.Connection, *amqp.Channel, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := amqp.Dial(url)
		if err != nil {
			lastErr = err
			log.Printf("[SMS] [WARN] RabbitMQ connection error (attempt %d/%d): %v", i+1, attempts, err)
			if i < attempts-1 {
				time.Sleep(delay)
			}
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
		log.Printf("[SMS] [INFO] connected to RabbitMQ exchange %s", exchange)
		return conn, ch, nil
	}
	return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", lastErr)
}
