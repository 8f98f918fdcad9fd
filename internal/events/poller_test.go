package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

type fakeOutbox struct {
	mu        sync.Mutex
	events    []models.OutboxEvent
	processed []primitive.ObjectID
	fetchErr  error
}

func (f *fakeOutbox) GetUnprocessedEvents(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.OutboxEvent
	for _, e := range f.events {
		if !e.Processed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkEventAsProcessed(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Processed = true
		}
	}
	f.processed = append(f.processed, id)
	return nil
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failOn   int
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil && len(w.messages) == w.failOn {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func newEvent(orderID, eventType string) models.OutboxEvent {
	return models.OutboxEvent{
		ID:          primitive.NewObjectID(),
		AggregateID: orderID,
		EventType:   eventType,
		Payload:     []byte(`{"orderId":"` + orderID + `"}`),
		CreatedAt:   time.Now(),
	}
}

func TestPollerPublishesAndMarks(t *testing.T) {
	outbox := &fakeOutbox{events: []models.OutboxEvent{
		newEvent("o1", models.EventOrderCreated),
		newEvent("o1", models.EventOrderStatusChanged),
	}}
	writer := &fakeWriter{}
	p := NewOutboxPoller(outbox, writer)

	n := p.processUnpublishedEvents(context.Background())

	assert.Equal(t, 2, n)
	require.Len(t, writer.messages, 2)
	assert.Equal(t, []byte("o1"), writer.messages[0].Key)
	assert.Equal(t, "event_type", writer.messages[0].Headers[0].Key)
	assert.Equal(t, []byte(models.EventOrderCreated), writer.messages[0].Headers[0].Value)
	assert.Equal(t, []byte(models.EventOrderStatusChanged), writer.messages[1].Headers[0].Value)
	assert.Len(t, outbox.processed, 2)

	assert.Zero(t, p.processUnpublishedEvents(context.Background()))
}

func TestPollerStopsAtFirstFailure(t *testing.T) {
	first := newEvent("o1", models.EventOrderCreated)
	second := newEvent("o2", models.EventOrderCreated)
	outbox := &fakeOutbox{events: []models.OutboxEvent{first, second}}
	writer := &fakeWriter{failOn: 1, err: errors.New("broker down")}
	p := NewOutboxPoller(outbox, writer)

	n := p.processUnpublishedEvents(context.Background())

	assert.Equal(t, 1, n)
	assert.Equal(t, []primitive.ObjectID{first.ID}, outbox.processed)

	writer.err = nil
	assert.Equal(t, 1, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []primitive.ObjectID{first.ID, second.ID}, outbox.processed)
}

func TestPollerSurvivesFetchError(t *testing.T) {
	outbox := &fakeOutbox{fetchErr: errors.New("mongo down")}
	p := NewOutboxPoller(outbox, &fakeWriter{})

	assert.Zero(t, p.processUnpublishedEvents(context.Background()))
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{events: []models.OutboxEvent{newEvent("o1", models.EventOrderCreated)}}
	writer := &fakeWriter{}
	p := NewOutboxPoller(outbox, writer)
	p.tick = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		outbox.mu.Lock()
		defer outbox.mu.Unlock()
		return len(outbox.processed) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
