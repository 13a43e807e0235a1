package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/kafka"
)

// Publisher writes a batch of events; *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Tracker receives analytics events from the request path.
type Tracker interface {
	TrackSearch(e SearchEvent)
	TrackClick(e ClickEvent)
}

// Nop discards every event.
type Nop struct{}

func (Nop) TrackSearch(SearchEvent) {}
func (Nop) TrackClick(ClickEvent)   {}

// Collector buffers events and publishes them in batches, when the buffer
// reaches batchSize or every flushInterval. Tracking never blocks: events
// beyond maxBuffered are dropped.
type Collector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	flushCh       chan struct{}
	done          chan struct{}
	dropped       int64
	logger        *slog.Logger
}

func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 100,
		flushInterval: flushInterval,
		flushCh:       make(chan struct{}, 1),
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the flush loop until ctx is cancelled, then flushes what is
// left with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-c.flushCh:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) TrackSearch(e SearchEvent) {
	e.Type = EventSearch
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: string(EventSearch), Value: e})
}

func (c *Collector) TrackClick(e ClickEvent) {
	e.Type = EventClick
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: string(EventClick), Value: e})
}

func (c *Collector) track(ev kafka.Event) {
	c.mu.Lock()
	if len(c.buffer) >= c.maxBuffered {
		c.dropped++
		c.mu.Unlock()
		return
	}
	c.buffer = append(c.buffer, ev)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

// Close waits for the flush loop started by Start to exit.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	dropped := c.dropped
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("analytics events dropped (buffer full)", "dropped", dropped)
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if len(c.buffer) > c.maxBuffered {
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", len(c.buffer)-c.maxBuffered)
			c.buffer = c.buffer[:c.maxBuffered]
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
