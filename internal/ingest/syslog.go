package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"time"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

var (
	// <PRI>1 TIMESTAMP HOST APP PROCID MSGID [SD|-] MSG
	reRFC5424 = regexp.MustCompile(`^(?:\d+ )?<\d{1,3}>1 \S+ \S+ \S+ \S+ \S+ (?:-|(?:\[[^\]]*\])+) ?`)
	// <PRI>Mmm dd hh:mm:ss HOST TAG: MSG
	reRFC3164 = regexp.MustCompile(`^(?:\d+ )?<\d{1,3}>[A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2} \S+ [^:\s]+: ?`)
)

// syslogMessage strips an RFC 5424 or RFC 3164 header, including an octet
// count prefix, and returns the message part. Unrecognised input is
// returned unchanged.
func syslogMessage(frame string) string {
	if loc := reRFC5424.FindStringIndex(frame); loc != nil {
		return frame[loc[1]:]
	}
	if loc := reRFC3164.FindStringIndex(frame); loc != nil {
		return frame[loc[1]:]
	}
	return frame
}

func StartSyslog(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.Syslog
	if !current.Enabled {
		if logger != nil {
			logger.Info("syslog ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("syslog ingest enabled", "udp_addr", current.UDPAddr, "tcp_addr", current.TCPAddr)
	}
	if current.UDPAddr != "" {
		go listenUDP(ctx, current.UDPAddr, parser, out, logger)
	}
	if current.TCPAddr != "" {
		// One syslog frame per line; escaped newlines carry multi-line logs.
		serveTCP(ctx, current.TCPAddr, "syslog tcp", logger, func(conn net.Conn) {
			framer := NewFramer(config.ParserConfig{Framing: "line"})
			if err := streamRecords(ctx, conn, framer, syslogMessage, parser, "syslog", out, logger); err != nil && logger != nil {
				logger.Warn("syslog tcp read error", "err", err)
			}
		})
	}
}

func listenUDP(ctx context.Context, addr string, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		if logger != nil {
			logger.Error("syslog udp resolve error", "err", err)
		}
		return
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		if logger != nil {
			logger.Error("syslog udp listen error", "err", err)
		}
		return
	}
	defer conn.Close()
	buf := make([]byte, 64*1024)
	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if logger != nil {
				logger.Warn("syslog udp read error", "err", err)
			}
			continue
		}
		// A datagram is one message even when it spans several lines.
		emitLine(ctx, parser, "syslog", syslogMessage(string(buf[:n])), out, logger)
	}
}
