// Package messagequeue provides a bounded event broker between the EventSub
// read loop and the consumers that react to events.
package messagequeue

import (
	"context"
	"fmt"
	"sync"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/metrics"
	"github.com/Soypete/twitch-event-bot/types"
)

// Consumer is an interface for consuming events from the queue
type Consumer interface {
	ProcessEvent(ctx context.Context, ev types.Event)
	Name() string
}

// Broker distributes events to every consumer. A fixed number of workers
// drain the queue, bounding how many events are handled at once.
type Broker struct {
	consumers []Consumer
	queue     chan types.Event
	workers   int
	logger    *logging.Logger
	mu        sync.RWMutex
}

// NewBroker creates a new event broker
func NewBroker(queueSize, workers int, logger *logging.Logger) *Broker {
	if logger == nil {
		logger = logging.Default()
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if workers <= 0 {
		workers = 1
	}

	return &Broker{
		consumers: make([]Consumer, 0),
		queue:     make(chan types.Event, queueSize),
		workers:   workers,
		logger:    logger.WithComponent("broker"),
	}
}

// Subscribe adds a consumer to receive events
func (b *Broker) Subscribe(consumer Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consumers = append(b.consumers, consumer)
	b.logger.Info("consumer subscribed to event broker", "consumer", consumer.Name())
}

// Publish queues an event without blocking. It reports false when the queue
// is full and the event was dropped.
func (b *Broker) Publish(ev types.Event) bool {
	select {
	case b.queue <- ev:
		metrics.EventQueueDepth.Set(float64(len(b.queue)))
		return true
	default:
		metrics.TwitchEventDroppedCount.Add(1)
		b.logger.Warn("event queue full, dropping event", "kind", ev.Kind())
		return false
	}
}

// Handle adapts Publish to the eventsub handler signature.
func (b *Broker) Handle(_ context.Context, ev types.Event) {
	b.Publish(ev)
}

// Start runs the workers until ctx is done.
func (b *Broker) Start(ctx context.Context, wg *sync.WaitGroup) {
	b.mu.RLock()
	b.logger.Info("event broker started", "consumers", len(b.consumers), "workers", b.workers)
	b.mu.RUnlock()

	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					b.logger.Debug("event worker shutting down", "worker", id)
					return
				case ev := <-b.queue:
					metrics.EventQueueDepth.Set(float64(len(b.queue)))
					b.fanout(ctx, ev)
				}
			}
		}(i)
	}
}

// fanout distributes an event to all consumers in parallel
func (b *Broker) fanout(ctx context.Context, ev types.Event) {
	b.mu.RLock()
	consumers := b.consumers
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, consumer := range consumers {
		wg.Add(1)
		go func(c Consumer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("consumer panicked", "consumer", c.Name(), "kind", ev.Kind(), "error", fmt.Sprint(r))
				}
			}()
			c.ProcessEvent(ctx, ev)
		}(consumer)
	}
	wg.Wait()
}

// GetQueueLength returns the current queue depth
func (b *Broker) GetQueueLength() int {
	return len(b.queue)
}
