package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultBufferSize = 256

// Sink is the destination an event is ultimately written to.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Dispatcher decouples callers from the sink: Record enqueues without
// blocking (dropping when the buffer is full) and a single worker goroutine
// writes events out. Sink failures are logged and swallowed, never surfaced.
type Dispatcher struct {
	sink      Sink
	events    chan Event
	logger    zerolog.Logger
	nowTime   func() time.Time
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Recorder = (*Dispatcher)(nil)

type DispatcherOption func(*Dispatcher)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.events = make(chan Event, n)
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.nowTime = nowFunc
	}
}

func NewDispatcher(sink Sink, logger zerolog.Logger, options ...DispatcherOption) *Dispatcher {
	dispatcher := &Dispatcher{
		sink:    sink,
		events:  make(chan Event, defaultBufferSize),
		logger:  logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(dispatcher)
	}

	dispatcher.wg.Add(1)
	go dispatcher.run()
	return dispatcher
}

// Record enqueues an event. It never blocks; when the buffer is full the
// event is dropped and counted in the log.
func (d *Dispatcher) Record(_ context.Context, event Event) {
	if event.At.IsZero() {
		event.At = d.nowTime()
	}
	select {
	case d.events <- event:
	default:
		d.logger.Warn().Str("action", string(event.Action)).Msg("audit buffer full, event dropped")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		// The caller's request context is long gone by the time the event is
		// written, so each write gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.sink.Write(ctx, event); err != nil {
			d.logger.Error().Err(err).Str("action", string(event.Action)).Msg("audit sink write failed")
		}
		cancel()
	}
}

// Close drains the buffer and stops the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.events)
	})
	d.wg.Wait()
}
