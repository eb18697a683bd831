package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

const maxRecordBytes = 1024 * 1024

// Framer cuts a stream of lines into event texts.
type Framer struct {
	block    bool
	maxLines int
	lines    []string
}

func NewFramer(cfg config.ParserConfig) *Framer {
	maxLines := cfg.MaxBlockLines
	if maxLines <= 0 {
		maxLines = 32
	}
	return &Framer{block: strings.EqualFold(cfg.Framing, "block"), maxLines: maxLines}
}

// Push feeds one line and returns a finished record when the line closes one.
func (f *Framer) Push(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	blank := strings.TrimSpace(line) == ""
	if !f.block {
		if blank {
			return "", false
		}
		return line, true
	}
	if blank {
		return f.Flush()
	}
	f.lines = append(f.lines, line)
	if len(f.lines) >= f.maxLines {
		return f.Flush()
	}
	return "", false
}

// Flush returns whatever a block in progress holds.
func (f *Framer) Flush() (string, bool) {
	if len(f.lines) == 0 {
		return "", false
	}
	rec := strings.Join(f.lines, "\n")
	f.lines = f.lines[:0]
	return rec, true
}

func (f *Framer) Pending() bool {
	return len(f.lines) > 0
}

// streamRecords reads r until EOF or cancellation and emits each framed
// record. transform, when set, rewrites every line before framing. A
// trailing partial block is emitted at EOF.
func streamRecords(ctx context.Context, r io.Reader, framer *Framer, transform func(string) string, parser *Parser, source string, out chan<- model.RawEvent, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), maxRecordBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if transform != nil {
			line = transform(line)
		}
		if rec, ok := framer.Push(line); ok {
			emitLine(ctx, parser, source, rec, out, logger)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if rec, ok := framer.Flush(); ok {
		emitLine(ctx, parser, source, rec, out, logger)
	}
	return scanner.Err()
}
