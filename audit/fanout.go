package audit

import (
	"context"

	"github.com/pkg/errors"
)

// FanoutSink writes each event to every underlying sink. A failing sink does
// not stop delivery to the others; the first error is returned for logging.
type FanoutSink struct {
	sinks []Sink
}

var _ Sink = (*FanoutSink)(nil)

func NewFanoutSink(sinks ...Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (f *FanoutSink) Write(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Write(ctx, event); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "[FanoutSink.Write]")
		}
	}
	return firstErr
}
