// Package analytics ships crawl and search events to Kafka without
// blocking the caller.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/daqol/information-retrieval/pkg/kafka"
)

// Publisher writes a batch of events; *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	publishTimeout       = 5 * time.Second
)

// Collector buffers events and publishes them in batches from a background
// goroutine. A nil *Collector accepts and discards every event, so callers
// need not check whether analytics is enabled.
type Collector struct {
	publisher     Publisher
	eventCh       chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewCollector(p Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	c := &Collector{
		publisher:     p,
		eventCh:       make(chan kafka.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
	go c.run()
	return c
}

// Track queues an event. It never blocks: when the buffer is full or the
// collector is closed the event is dropped.
func (c *Collector) Track(key string, event any) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- kafka.Event{Key: key, Value: event}:
	default:
		c.logger.Warn("analytics event dropped, buffer full")
	}
}

// Close stops accepting events and publishes whatever is buffered.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.publish(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.publish(batch)
				batch = make([]kafka.Event, 0, c.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.publish(batch)
				batch = make([]kafka.Event, 0, c.batchSize)
			}
		}
	}
}

// publish is best effort: a failed batch is logged and dropped.
func (c *Collector) publish(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("publishing analytics batch failed", "events", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics batch published", "events", len(batch))
}
