package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

func StartTCPStream(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest
	if !current.TCPStream.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.TCPStream.Addr, "framing", current.Parser.Framing)
	}
	framing := current.Parser
	serveTCP(ctx, current.TCPStream.Addr, "tcp stream", logger, func(conn net.Conn) {
		// Each connection frames independently so blocks never interleave.
		if err := streamRecords(ctx, conn, NewFramer(framing), nil, parser, "tcp_stream", out, logger); err != nil && logger != nil {
			logger.Warn("tcp stream read error", "remote", conn.RemoteAddr().String(), "err", err)
		}
	})
}

// serveTCP accepts connections on addr until ctx is cancelled and runs
// handle for each one on its own goroutine. The connection is closed when
// handle returns or ctx ends.
func serveTCP(ctx context.Context, addr, name string, logger *slog.Logger, handle func(net.Conn)) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if logger != nil {
			logger.Error(name+" listen error", "addr", addr, "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn(name+" accept error", "err", err)
				}
				if !BackoffSleep(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}
			go func() {
				done := make(chan struct{})
				defer close(done)
				go func() {
					select {
					case <-ctx.Done():
						_ = conn.Close()
					case <-done:
					}
				}()
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
}
