// Package ingest runs the event sources that feed raw log text to the engine.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.RawEvent, ev model.RawEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		if logger != nil {
			logger.Warn("event channel full, dropping event", "source", ev.Source, "received_at", ev.ReceivedAt)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitLine decodes one transport line and forwards it.
func emitLine(ctx context.Context, parser *Parser, source, line string, out chan<- model.RawEvent, logger *slog.Logger) {
	ev, ok := parser.ParseLine(line, time.Now().UTC())
	if !ok {
		return
	}
	if ev.Source == "" {
		ev.Source = source
	}
	SendNonBlocking(ctx, out, ev, logger)
}
