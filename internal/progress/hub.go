package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBufferSize  = 4096
	defaultBatchSize   = 500
	defaultBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout = 10 * time.Second
	dropLogInterval    = 5 * time.Second
)

// HubConfig controls buffering and batching for the Hub.
type HubConfig struct {
	BufferSize  int           // internal channel capacity
	BatchSize   int           // flush once this many events queue
	BatchWait   time.Duration // flush after this long even if the batch is small
	SinkTimeout time.Duration // per-sink deadline while flushing
	Logger      *zap.Logger
}

// Hub fans events out to registered sinks in batches. Emit never
// blocks; a full buffer drops the event and accounts for it.
type Hub struct {
	cfg    HubConfig
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	dropped     atomic.Int64
	lastDropLog atomic.Int64
	closed      atomic.Bool
	closeOnce   sync.Once
}

// NewHub starts the background batching goroutine over the supplied
// sinks. The returned Hub accepts events immediately.
func NewHub(cfg HubConfig, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = defaultBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: cfg.Logger,
	}
	go h.run()
	return h
}

// Emit enqueues an event for batching. Invalid events are discarded; a
// full buffer drops the event with a rate-limited warning.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		now := time.Now().UnixNano()
		last := h.lastDropLog.Load()
		if now-last >= dropLogInterval.Nanoseconds() && h.lastDropLog.CompareAndSwap(last, now) {
			h.logger.Warn("progress events dropped due to backpressure",
				zap.Int64("dropped", h.dropped.Swap(0)))
		}
	}
}

// Dropped returns the number of events dropped since the last warning.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close drains buffered events, flushes and closes the sinks, and waits
// for the background goroutine. Safe to call more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.BatchSize)
	ticker := time.NewTicker(h.cfg.BatchWait)
	defer ticker.Stop()
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.drain(batch)
			h.closeSinks()
			return
		}
	}
}

// drain empties whatever is still buffered after stop was requested.
func (h *Hub) drain(batch []Event) {
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			h.flush(batch)
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	copied := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, copied); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
		cancel()
	}
}
