package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_RecordOperation(t *testing.T) {
	p := NewPrometheus()
	ctx := context.Background()

	p.RecordOperation(ctx, "update", "ok", 2*time.Millisecond)
	p.RecordOperation(ctx, "update", "ok", 3*time.Millisecond)
	p.RecordOperation(ctx, "move", "error", time.Millisecond)

	if got := testutil.CollectAndCount(p.operationsTotal); got != 2 {
		t.Errorf("expected 2 series, got %d", got)
	}
	if got := testutil.ToFloat64(p.operationsTotal.WithLabelValues("update", "ok")); got != 2 {
		t.Errorf("update/ok = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(p.operationDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestPrometheus_ErrorsAndGauges(t *testing.T) {
	p := NewPrometheus()
	ctx := context.Background()

	p.RecordError(ctx, "load", "malformed_header")
	p.RecordError(ctx, "load", "malformed_header")
	p.SetDocuments(ctx, "projects", 4)
	p.SetDocuments(ctx, "projects", 5)
	p.SetLinks(ctx, "broken", 1)

	if got := testutil.ToFloat64(p.errorsTotal.WithLabelValues("load", "malformed_header")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.documents.WithLabelValues("projects")); got != 5 {
		t.Errorf("documents = %v, want 5", got)
	}
	if got := testutil.ToFloat64(p.links.WithLabelValues("broken")); got != 1 {
		t.Errorf("links = %v, want 1", got)
	}
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.RecordOperation(context.Background(), "search", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `paravault_operations_total{operation="search",status="ok"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestNoopSatisfiesCollector(t *testing.T) {
	var c Collector = Noop{}
	c.RecordOperation(context.Background(), "x", "ok", 0)
}
