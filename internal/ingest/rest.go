package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

type RESTServer struct {
	parser *Parser
	out    chan<- model.RawEvent
	logger *slog.Logger
}

func NewRESTServer(parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) *RESTServer {
	return &RESTServer{parser: parser, out: out, logger: logger}
}

func StartREST(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := NewRESTServer(parser, out, logger)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Post("/events", s.HandleEvents)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

// HandleEvents accepts a JSON envelope, a JSON array of envelopes, or a
// text/plain body holding one log message.
func (s *RESTServer) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	accepted, failed := 0, 0

	switch {
	case strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain"):
		if s.emit(r.Context(), model.RawEvent{Text: string(trim), ReceivedAt: now}) {
			accepted++
		} else {
			failed++
		}
	case trim[0] == '[':
		var list []map[string]any
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, obj := range list {
			if s.processMap(r.Context(), obj, now) {
				accepted++
			} else {
				failed++
			}
		}
	default:
		var obj map[string]any
		if err := json.Unmarshal(trim, &obj); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if s.processMap(r.Context(), obj, now) {
			accepted++
		} else {
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if accepted == 0 {
		w.WriteHeader(http.StatusUnprocessableEntity)
	} else {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"failed":   failed,
	})
}

func (s *RESTServer) processMap(ctx context.Context, obj map[string]any, now time.Time) bool {
	ev, err := s.parser.ParseMap(obj, now)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest envelope rejected", "err", err)
		}
		return false
	}
	return s.emit(ctx, ev)
}

func (s *RESTServer) emit(ctx context.Context, ev model.RawEvent) bool {
	if ev.Source == "" {
		ev.Source = "rest"
	}
	return SendNonBlocking(context.WithoutCancel(ctx), s.out, ev, s.logger)
}
