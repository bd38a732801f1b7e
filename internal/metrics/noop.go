package metrics

import (
	"context"
	"time"
)

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordOperation(context.Context, string, string, time.Duration) {}
func (Noop) RecordError(context.Context, string, string)                    {}
func (Noop) SetDocuments(context.Context, string, int)                      {}
func (Noop) SetLinks(context.Context, string, int)                          {}
