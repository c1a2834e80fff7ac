package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Enqueue when the dispatcher is saturated.
	ErrQueueFull = errors.New("event queue full")
	// ErrDispatcherClosed is returned by Enqueue after Shutdown.
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

// DispatcherConfig controls the concurrency of a Dispatcher.
type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
}

// Dispatcher publishes events to a Sink from a bounded queue drained by a
// fixed pool of workers, so publishing never blocks the request path.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan VideoUploaded
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:    sink,
		logger:  logger,
		timeout: cfg.PublishTimeout,
		jobs:    make(chan VideoUploaded, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules event for publication without waiting for the sink. It
// never blocks, so a cancelled caller context does not drop the event.
func (d *Dispatcher) Enqueue(_ context.Context, event VideoUploaded) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting events and waits for queued ones to be published
// or for ctx to expire, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.jobs {
		d.publish(event)
	}
}

func (d *Dispatcher) publish(event VideoUploaded) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Publish(ctx, event); err != nil {
		d.logger.Error("publish upload event", "video_id", event.VideoID, "error", err)
	}
}
