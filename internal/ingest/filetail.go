package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

// Upper bound on how long a tail sleeps without a filesystem event, so
// writes the watcher misses (network filesystems) are still picked up.
const tailPollInterval = 2 * time.Second

func StartFileTail(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest
	if !current.FileTail.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.FileTail.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.FileTail.StartAtEnd, "framing", current.Parser.Framing)
		}
		t := &fileTail{
			path:       path,
			startAtEnd: current.FileTail.StartAtEnd,
			framer:     NewFramer(current.Parser),
			parser:     parser,
			out:        out,
			logger:     logger,
		}
		go t.run(ctx)
	}
}

type fileTail struct {
	path       string
	startAtEnd bool
	framer     *Framer
	parser     *Parser
	out        chan<- model.RawEvent
	logger     *slog.Logger
	changed    chan struct{}
}

func (t *fileTail) run(ctx context.Context) {
	t.changed = make(chan struct{}, 1)
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(t.path)); err == nil {
			go t.watch(ctx, w)
		} else if t.logger != nil {
			t.logger.Warn("tail watch failed, polling", "path", t.path, "err", err)
		}
	}

	seekEnd := t.startAtEnd
	for ctx.Err() == nil {
		f, err := os.Open(t.path)
		if err != nil {
			if t.logger != nil && !errors.Is(err, os.ErrNotExist) {
				t.logger.Warn("tail open failed", "path", t.path, "err", err)
			}
			if !t.wait(ctx) {
				return
			}
			continue
		}
		t.follow(ctx, f, seekEnd)
		_ = f.Close()
		// A rotated or truncated file is read from the start.
		seekEnd = false
	}
}

// follow reads f until it is rotated, truncated or ctx ends.
func (t *fileTail) follow(ctx context.Context, f *os.File, seekEnd bool) {
	var offset int64
	if seekEnd {
		if pos, err := f.Seek(0, io.SeekEnd); err == nil {
			offset = pos
		}
	}
	reader := bufio.NewReader(f)
	var partial string
	idle := 0
	for {
		chunk, err := reader.ReadString('\n')
		offset += int64(len(chunk))
		partial += chunk
		if err == nil {
			idle = 0
			if rec, ok := t.framer.Push(partial); ok {
				emitLine(ctx, t.parser, "file_tail", rec, t.out, t.logger)
			}
			partial = ""
			continue
		}
		if !errors.Is(err, io.EOF) {
			if t.logger != nil {
				t.logger.Warn("tail read error", "path", t.path, "err", err)
			}
			return
		}
		// A block the writer has not closed with a blank line is emitted
		// once the file has been quiet for a full wait.
		if idle > 0 && partial == "" {
			if rec, ok := t.framer.Flush(); ok {
				emitLine(ctx, t.parser, "file_tail", rec, t.out, t.logger)
			}
		}
		if !t.wait(ctx) {
			return
		}
		idle++
		info, statErr := os.Stat(t.path)
		if statErr != nil {
			return
		}
		if cur, err := f.Stat(); err == nil && !os.SameFile(info, cur) {
			return
		}
		if info.Size() < offset {
			return
		}
	}
}

func (t *fileTail) watch(ctx context.Context, w *fsnotify.Watcher) {
	target := filepath.Clean(t.path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			select {
			case t.changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if t.logger != nil {
				t.logger.Warn("tail watch error", "path", t.path, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// wait blocks until the file changes, the poll interval passes or ctx ends.
func (t *fileTail) wait(ctx context.Context) bool {
	timer := time.NewTimer(tailPollInterval)
	defer timer.Stop()
	select {
	case <-t.changed:
		return true
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
