package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"antitrigger/internal/alerts"
	"antitrigger/internal/config"
	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
)

type EngineControl interface {
	Reset()
	ActiveKeys() int
	Started() time.Time
}

type Server struct {
	cfg     *config.Manager
	metrics *metrics.Store
	alerts  *alerts.Store
	engine  EngineControl
	logger  *slog.Logger
	version string
	router  *chi.Mux
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	Uptime     string          `json:"uptime"`
	ConfigPath string          `json:"config_path"`
	ActiveKeys int             `json:"active_burst_keys"`
	Alerts     int             `json:"alerts_buffered"`
	Storage    string          `json:"storage"`
	Ingest     ingestStatus    `json:"ingest"`
	Detection  detectionStatus `json:"detection"`
	Notify     notifyStatus    `json:"notify"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	Syslog    bool `json:"syslog"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
	NATS      bool `json:"nats"`
	Discord   bool `json:"discord"`
}

type detectionStatus struct {
	BurstWindow    string `json:"burst_window"`
	BurstThreshold int    `json:"burst_threshold"`
	ChainMin       string `json:"chain_min_interval"`
	ChainMax       string `json:"chain_max_interval"`
	Retention      string `json:"retention"`
}

type notifyStatus struct {
	Destinations int  `json:"destinations"`
	Mention      bool `json:"mention_everyone"`
}

func NewServer(cfg *config.Manager, metricsStore *metrics.Store, alertsStore *alerts.Store, engine EngineControl, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		cfg:     cfg,
		metrics: metricsStore,
		alerts:  alertsStore,
		engine:  engine,
		logger:  logger,
		version: version,
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Get("/alerts", s.handleAlerts)
	r.Get("/stats", s.handleStats)
	r.Get("/stats/{key}", s.handleStatsKey)
	r.Post("/admin/clear", s.handleClear)
	r.Post("/admin/reset", s.handleReset)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func Start(ctx context.Context, cfg *config.Manager, metricsStore *metrics.Store, alertsStore *alerts.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, metricsStore, alertsStore, engine, logger, version)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Storage:    cfg.Storage.Driver,
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			Syslog:    cfg.Ingest.Syslog.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			NATS:      cfg.Ingest.NATS.Enabled,
			Discord:   cfg.Ingest.Discord.Enabled,
		},
		Detection: detectionStatus{
			BurstWindow:    cfg.Detection.Burst.Window.String(),
			BurstThreshold: cfg.Detection.Burst.Threshold,
			ChainMin:       cfg.Detection.Chain.MinInterval.String(),
			ChainMax:       cfg.Detection.Chain.MaxInterval.String(),
			Retention:      cfg.Detection.Retention.String(),
		},
		Notify: notifyStatus{
			Destinations: len(cfg.Notify.Destinations),
			Mention:      cfg.Notify.MentionEveryone,
		},
	}
	if !cfg.Storage.Enabled {
		resp.Storage = "memory"
	}
	if s.engine != nil {
		resp.ActiveKeys = s.engine.ActiveKeys()
		resp.Uptime = time.Since(s.engine.Started()).Truncate(time.Second).String()
	}
	if s.alerts != nil {
		resp.Alerts = s.alerts.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	q := alerts.Query{Limit: limit, Kind: model.AlertKind(r.URL.Query().Get("kind")), Key: r.URL.Query().Get("key")}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		q.Since = ts
	}
	list := s.alerts.Find(q)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	all := s.metrics.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": all,
		"count": len(all),
	})
}

func (s *Server) handleStatsKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	stats, ok := s.metrics.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"stats": stats,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.metrics.Clear()
		s.alerts.Clear()
	case "alerts":
		s.alerts.Clear()
	case "stats":
		s.metrics.Clear()
	default:
		writeError(w, http.StatusBadRequest, "unknown target")
		return
	}
	s.logger.Info("admin clear", "target", target)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": target})
}

// handleReset drops in-process detector state. Durable records are kept.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if s.engine != nil {
		s.engine.Reset()
	}
	s.metrics.Clear()
	s.alerts.Clear()
	s.logger.Info("admin reset")
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
