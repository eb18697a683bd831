package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

// kafkaSourceHeader, when present on a record, names the upstream source
// instead of the generic "kafka".
const kafkaSourceHeader = "source"

func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        current.Brokers,
		Topic:          current.Topic,
		GroupID:        current.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	})
	go func() {
		defer reader.Close()
		failures := 0
		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				if logger != nil {
					logger.Warn("kafka fetch error", "err", err, "failures", failures)
				}
				if !BackoffSleep(ctx, backoff(failures)) {
					return
				}
				continue
			}
			failures = 0
			if ev, ok := kafkaEvent(parser, m); ok {
				SendNonBlocking(ctx, out, ev, logger)
			}
			// Offsets advance after hand-off, so a crash replays rather than loses.
			if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil && logger != nil {
				logger.Warn("kafka commit error", "partition", m.Partition, "offset", m.Offset, "err", err)
			}
		}
	}()
}

func kafkaEvent(parser *Parser, m kafka.Message) (model.RawEvent, bool) {
	receivedAt := m.Time.UTC()
	if m.Time.IsZero() {
		receivedAt = time.Now().UTC()
	}
	ev, ok := parser.ParseLine(string(m.Value), receivedAt)
	if !ok {
		return ev, false
	}
	if ev.DeliveryID == "" {
		ev.DeliveryID = fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	}
	if ev.Source == "" {
		ev.Source = "kafka"
		for _, h := range m.Headers {
			if strings.EqualFold(h.Key, kafkaSourceHeader) && len(h.Value) > 0 {
				ev.Source = string(h.Value)
				break
			}
		}
	}
	return ev, true
}

// backoff grows linearly with consecutive failures up to five seconds.
func backoff(failures int) time.Duration {
	d := time.Duration(failures) * 250 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
