package completion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/market-bridge/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeSource struct {
	deliveries chan amqp.Delivery
	prefetch   int
}

func (s *fakeSource) SetPrefetch(count int) error {
	s.prefetch = count
	return nil
}

func (s *fakeSource) Consume(string) (<-chan amqp.Delivery, error) {
	return s.deliveries, nil
}

func TestConsumer_ResolvesAndAcknowledges(t *testing.T) {
	tracker := NewTracker(testLogger())
	job := domain.NewJob("10.0.0.5", "iphone", "Ozon", 1)
	w := tracker.Await(job)

	ack := &fakeAcknowledger{}
	source := &fakeSource{deliveries: make(chan amqp.Delivery, 3)}
	source.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"request_id":"` + job.ID + `","status":"done"}`)}
	source.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`not json`)}
	source.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte(`{"ip":"10.0.0.5","marketplace":"DNS"}`)}
	close(source.deliveries)

	consumer := NewConsumer(&ConsumerConfig{
		Source:        source,
		Tracker:       tracker,
		Logger:        testLogger(),
		ConsumerTag:   "bridge-test",
		PrefetchCount: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, consumer.Run(ctx))

	select {
	case sig := <-w.Done():
		assert.Equal(t, domain.CompletionDone, sig.Status)
	default:
		t.Fatal("waiter was not resolved")
	}

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, []uint64{1, 3}, ack.acked)
	assert.Equal(t, []uint64{2}, ack.nacked)
	assert.Equal(t, []bool{false}, ack.requeue)
	assert.Equal(t, 10, source.prefetch)
}

func TestConsumer_StopsOnContextCancel(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery)}
	consumer := NewConsumer(&ConsumerConfig{
		Source:  source,
		Tracker: NewTracker(testLogger()),
		Logger:  testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
