package storage

import (
	"context"

	"pmrouter/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// Sink receives the events of committed engine operations.
type Sink interface {
	PutEvents(ctx context.Context, events []model.Event) error
}
