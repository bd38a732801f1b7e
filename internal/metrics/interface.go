// Package metrics records vault operation metrics.
package metrics

import (
	"context"
	"time"
)

// Collector receives operation metrics from the vault service.
type Collector interface {
	RecordOperation(ctx context.Context, operation, status string, d time.Duration)
	RecordError(ctx context.Context, operation, kind string)
	SetDocuments(ctx context.Context, category string, n int)
	SetLinks(ctx context.Context, state string, n int)
}
