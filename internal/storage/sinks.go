package storage

import (
	"context"
	"errors"
	"fmt"

	"pmrouter/internal/eventlog"
	"pmrouter/internal/model"
)

// FanOut delivers every batch to all sinks, joining their errors.
type FanOut []Sink

func (f FanOut) PutEvents(ctx context.Context, events []model.Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink encodes events as EVM-style logs before handing them to a Storage.
type LogSink struct {
	codec *eventlog.Codec
	out   Storage
}

func NewLogSink(codec *eventlog.Codec, out Storage) *LogSink {
	return &LogSink{codec: codec, out: out}
}

func (s *LogSink) PutEvents(_ context.Context, events []model.Event) error {
	logs, err := s.codec.EncodeAll(events)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	return s.out.PutLogBatch(logs)
}
