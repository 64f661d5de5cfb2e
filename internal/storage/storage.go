package storage

import (
	"context"

	"losslessMarket/internal/model"
)

// Storage is a sink for raw log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// EventStorage is a sink for decoded market and factory events.
type EventStorage interface {
	PutEventBatch(ctx context.Context, events []model.TypedEvent) error
}
