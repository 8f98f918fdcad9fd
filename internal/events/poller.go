package events

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/breaker"
	"boutique/internal/models"
)

const batchSize = 100

// Outbox is the storage side of the order event outbox.
type Outbox interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id primitive.ObjectID) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller publishes outbox records to Kafka in creation order and
// marks each one processed after the broker acknowledged it. Delivery is
// at least once.
type OutboxPoller struct {
	tick    time.Duration
	timeout time.Duration
	outbox  Outbox
	writer  MessageWriter
	cb      *gobreaker.CircuitBreaker[struct{}]
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func NewOutboxPoller(outbox Outbox, writer MessageWriter) *OutboxPoller {
	return &OutboxPoller{
		tick:    time.Second,
		timeout: 5 * time.Second,
		outbox:  outbox,
		writer:  writer,
		cb:      breaker.New[struct{}]("kafka-order-events", breaker.DefaultSettings()),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	log.Printf("[EVENTS] [INFO] outbox poller started")
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			log.Printf("[EVENTS] [INFO] outbox poller stopped")
			return
		}
	}
}

// processUnpublishedEvents stops at the first publish failure so events of
// one order are never reordered.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, err := p.outbox.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		log.Printf("[EVENTS] [ERROR] fetch outbox events: %v", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			if breaker.IsOpen(err) {
				log.Printf("[EVENTS] [WARN] kafka breaker open, %d event(s) pending", len(events)-published)
			} else {
				log.Printf("[EVENTS] [ERROR] publish event %s: %v", event.ID.Hex(), err)
			}
			return published
		}
		if err := p.outbox.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.Printf("[EVENTS] [ERROR] mark event %s processed: %v", event.ID.Hex(), err)
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event models.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	return err
}
