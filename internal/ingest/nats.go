package ingest

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

// StartNATS subscribes to the configured subject. Each message body is one
// payload in the same formats the line sources accept.
func StartNATS(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.NATS
	if !current.Enabled {
		if logger != nil {
			logger.Info("nats ingest disabled")
		}
		return
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger.Info("nats ingest enabled", "url", current.URL, "subject", current.Subject, "queue", current.Queue)

	go func() {
		var conn *nats.Conn
		for conn == nil {
			c, err := nats.Connect(current.URL,
				nats.Name("antitrigger"),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(2*time.Second),
				nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
					logger.Warn("nats disconnected", "err", err, "will_reconnect", !nc.IsClosed())
				}),
				nats.ReconnectHandler(func(nc *nats.Conn) {
					logger.Info("nats reconnected", "url", nc.ConnectedUrl())
				}),
			)
			if err != nil {
				logger.Warn("nats connect failed", "url", current.URL, "err", err)
				if !BackoffSleep(ctx, 2*time.Second) {
					return
				}
				continue
			}
			conn = c
		}
		defer conn.Close()

		handler := func(m *nats.Msg) {
			ev, ok := parser.ParseLine(string(m.Data), time.Now().UTC())
			if !ok {
				return
			}
			if ev.Source == "" {
				ev.Source = "nats"
			}
			if ev.DeliveryID == "" && m.Header != nil {
				ev.DeliveryID = m.Header.Get(nats.MsgIdHdr)
			}
			SendNonBlocking(ctx, out, ev, logger)
		}
		var (
			sub *nats.Subscription
			err error
		)
		if current.Queue != "" {
			sub, err = conn.QueueSubscribe(current.Subject, current.Queue, handler)
		} else {
			sub, err = conn.Subscribe(current.Subject, handler)
		}
		if err != nil {
			logger.Error("nats subscribe failed", "subject", current.Subject, "err", err)
			return
		}
		<-ctx.Done()
		_ = sub.Drain()
	}()
}
