package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/sirupsen/logrus"
)

// Fanout publishes every reading to all its sinks.
type Fanout struct {
	sinks   []Publisher
	timeout time.Duration
	logger  *logrus.Entry
}

func NewFanout(logger *logrus.Entry, timeout time.Duration, sinks ...Publisher) *Fanout {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.WithField("component", "publisher"),
	}
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish sends reading to every sink. Failures are logged and returned
// joined; they are not retried.
func (f *Fanout) Publish(ctx context.Context, reading types.MeterReading, at time.Time) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, reading, at); err != nil {
			f.logger.WithError(err).WithField("sink", sink.Name()).Warn("Failed to publish reading")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() {
	for _, sink := range f.sinks {
		sink.Close()
	}
}
