package store

import (
	"context"

	"github.com/openharvest/outreach-platform/internal/observability/metrics"
)

// instrumentedBackend counts write failures per collection on top of
// any Backend.
type instrumentedBackend struct {
	Backend
	metrics *metrics.OutreachMetrics
}

// Instrument wraps a backend with write-failure metrics. A nil metrics
// handle returns the backend unchanged.
func Instrument(b Backend, m *metrics.OutreachMetrics) Backend {
	if m == nil {
		return b
	}
	return &instrumentedBackend{Backend: b, metrics: m}
}

func (b *instrumentedBackend) Put(ctx context.Context, collection, id string, rec Record) error {
	err := b.Backend.Put(ctx, collection, id, rec)
	if err != nil {
		b.metrics.ObserveWriteFailure(collection)
	}
	return err
}

func (b *instrumentedBackend) Patch(ctx context.Context, collection, id string, rec Record) error {
	err := b.Backend.Patch(ctx, collection, id, rec)
	if err != nil {
		b.metrics.ObserveWriteFailure(collection)
	}
	return err
}
