package engine

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"antitrigger/internal/alerts"
	"antitrigger/internal/classify"
	"antitrigger/internal/config"
	"antitrigger/internal/extract"
	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
	"antitrigger/internal/retention"
	"antitrigger/internal/storage"
)

const maxRawContent = 1024

// Notifier receives every alert the engine raises. Implementations must not
// block the caller.
type Notifier interface {
	Notify(alert model.Alert)
}

type Engine struct {
	logger    *slog.Logger
	metrics   *metrics.Store
	alerts    *alerts.Store
	store     storage.Store
	retention *retention.Store
	notifier  Notifier
	cfg       atomic.Value
	rules     atomic.Value
	actors    atomic.Value
	extractor atomic.Value
	burst     *BurstDetector
	chains    *ChainDetector
	deDupe    *DedupeCache
	started   time.Time
}

func NewEngine(cfg *config.Config, logger *slog.Logger, metricsStore *metrics.Store, alertsStore *alerts.Store, store storage.Store, notifier Notifier) *Engine {
	if store == nil {
		store = storage.NewMemory()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	state := retention.New(store, cfg.Detection.RetentionCache, logger)
	e := &Engine{
		logger:    logger,
		metrics:   metricsStore,
		alerts:    alertsStore,
		store:     store,
		retention: state,
		notifier:  notifier,
		burst:     NewBurstDetector(state),
		chains:    NewChainDetector(state),
		deDupe:    NewDedupeCache(),
		started:   time.Now().UTC(),
	}
	e.UpdateConfig(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.rules.Store(classify.FromConfig(cfg.Detection))
	e.actors.Store(buildActorSet(cfg))
	e.extractor.Store(extract.New(cfg.Ingest.Parser.Timezone))
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) Started() time.Time {
	return e.started
}

// ActiveKeys reports how many burst keys currently hold state.
func (e *Engine) ActiveKeys() int {
	return e.burst.Len()
}

// Start consumes in until it closes or ctx ends. The returned channel closes
// once the loop has exited and no event is mid-flight.
func (e *Engine) Start(ctx context.Context, in <-chan model.RawEvent) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-in:
				if !ok {
					return
				}
				e.ProcessEvent(ctx, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// ProcessEvent runs one raw event through extraction, classification and
// both correlators, and returns the alerts it raised.
func (e *Engine) ProcessEvent(ctx context.Context, ev model.RawEvent) []model.Alert {
	cfg := e.config()
	now := time.Now().UTC()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}
	source := ev.Source
	if source == "" {
		source = "unknown"
	}
	metrics.EventsReceived.WithLabelValues(source).Inc()

	fields, ok := e.extractor.Load().(*extract.Extractor).Extract(ev)
	if !ok {
		metrics.EventsDropped.WithLabelValues("shape").Inc()
		e.logger.Debug("event dropped", "reason", "shape", "source", source)
		return nil
	}
	if fields.HasLogTime {
		fields.EventTime = clampTimestamp(fields.EventTime, ev.ReceivedAt.UTC(), cfg.Detection.MaxClockSkew, cfg.Detection.MaxFutureSkew)
	}

	if e.deDupe.Seen(source, ev.DeliveryID, ev.ReceivedAt.UTC(), cfg.Detection.DedupeWindow) {
		metrics.EventsDropped.WithLabelValues("duplicate").Inc()
		return nil
	}
	actor := classify.ActorKey(fields)
	if e.actors.Load().(*ActorSet).Ignored(actor) {
		metrics.EventsDropped.WithLabelValues("ignored_actor").Inc()
		e.logger.Debug("event dropped", "reason", "ignored_actor", "actor_id", actor)
		return nil
	}

	class := e.rules.Load().(*classify.Rules).Classify(fields)
	metrics.EventsClassified.WithLabelValues(string(class.Primary())).Inc()

	var out []model.Alert
	if class.SpamCandidate {
		snippet := ""
		if fields.SnippetKey != nil {
			snippet = *fields.SnippetKey
		}
		res := e.burst.Observe(ctx, class.SpamKey, snippet, fields.EventTime, class.SpamAlertable, burstParams(cfg.Detection))
		e.updateStats(class.SpamKey, model.CategorySpam, res.Count, 0, fields.EventTime)
		switch {
		case res.Fired:
			out = append(out, e.spamAlert(cfg, res, actor, snippet, fields))
		case res.Suppressed != "":
			metrics.AlertsSuppressed.WithLabelValues(string(model.AlertSpamBurst), res.Suppressed).Inc()
			e.logger.Debug("burst alert suppressed", "key", res.Key, "reason", res.Suppressed)
		}
	}

	if class.Salary == model.CategorySalaryDump || class.Salary == model.CategorySalaryLegit {
		if actor == "" {
			metrics.EventsDropped.WithLabelValues("no_actor").Inc()
		} else {
			entry := model.ChainEntry{
				Timestamp:  fields.EventTime,
				Amount:     class.Amount,
				Reason:     class.Reason,
				MoneyType:  class.MoneyType,
				RawContent: truncateRunes(fields.Raw, maxRawContent),
			}
			res := e.chains.Observe(ctx, class.Salary, actor, entry, chainParams(cfg.Detection))
			e.updateStats(actor, class.Salary, 0, res.Length, fields.EventTime)
			if res.Fired {
				out = append(out, e.chainAlert(res, fields))
			} else if res.Suppressed {
				metrics.AlertsSuppressed.WithLabelValues(string(chainKind(class.Salary)), "memo").Inc()
			}
		}
	}

	for _, alert := range out {
		e.record(ctx, alert)
	}
	return out
}

// Reset drops in-process correlation state. Durable records stay and are
// reloaded on next touch.
func (e *Engine) Reset() {
	e.burst.Reset()
	e.deDupe.Reset()
	e.retention.Forget()
}

func (e *Engine) record(ctx context.Context, alert model.Alert) {
	if e.alerts != nil {
		e.alerts.Add(alert)
	}
	metrics.AlertsFired.WithLabelValues(string(alert.Kind)).Inc()
	e.logger.Warn("alert triggered",
		"kind", alert.Kind,
		"key", alert.Key,
		"severity", alert.Severity,
		"count", alert.Count,
		"occurrence", alert.Occurrence,
	)
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		metrics.PersistenceErrors.WithLabelValues("alert").Inc()
		e.logger.Warn("alert persist failed", "id", alert.ID, "err", err)
	}
	if e.notifier != nil {
		e.notifier.Notify(alert)
	}
}

func (e *Engine) spamAlert(cfg *config.Config, res BurstResult, actor, snippet string, fields *model.ExtractedFields) model.Alert {
	alert := model.Alert{
		ID:         uuid.NewString(),
		Timestamp:  fields.EventTime,
		Kind:       model.AlertSpamBurst,
		Severity:   "high",
		Key:        res.Key,
		ActorID:    actor,
		Snippet:    snippet,
		Count:      res.Count,
		WindowSec:  int(cfg.Detection.Burst.Window / time.Second),
		Occurrence: res.Occurrence,
		Raw:        truncateRunes(fields.Raw, maxRawContent),
		Context: map[string]string{
			"first_seen": res.Run[0].UTC().Format(time.RFC3339),
			"last_seen":  res.Run[len(res.Run)-1].UTC().Format(time.RFC3339),
		},
	}
	if fields.Amount != nil {
		alert.Context["amount"] = strconv.FormatInt(*fields.Amount, 10)
	}
	if fields.Reason != nil {
		alert.Context["reason"] = *fields.Reason
	}
	if res.Occurrence > 1 {
		alert.Severity = "critical"
	}
	return alert
}

func (e *Engine) chainAlert(res ChainResult, fields *model.ExtractedFields) model.Alert {
	kind := chainKind(res.Category)
	severity := "critical"
	if kind == model.AlertSalaryLegit {
		severity = "info"
	}
	var total int64
	for _, c := range res.Chain {
		total += c.Amount
	}
	first, last := res.Chain[0].Timestamp, res.Chain[len(res.Chain)-1].Timestamp
	return model.Alert{
		ID:        uuid.NewString(),
		Timestamp: fields.EventTime,
		Kind:      kind,
		Severity:  severity,
		Key:       res.Actor,
		ActorID:   res.Actor,
		Count:     len(res.Chain),
		Chain:     res.Chain,
		Raw:       truncateRunes(fields.Raw, maxRawContent),
		Context: map[string]string{
			"category":   string(res.Category),
			"total":      strconv.FormatInt(total, 10),
			"span":       last.Sub(first).String(),
			"first_seen": first.UTC().Format(time.RFC3339),
			"last_seen":  last.UTC().Format(time.RFC3339),
		},
	}
}

func chainKind(cat model.Category) model.AlertKind {
	if cat == model.CategorySalaryLegit {
		return model.AlertSalaryLegit
	}
	return model.AlertSalaryDump
}

func (e *Engine) updateStats(key string, cat model.Category, count, chainLen int, ts time.Time) {
	if e.metrics == nil || key == "" {
		return
	}
	e.metrics.Update(model.KeyStats{
		Key:         key,
		Category:    cat,
		Count:       count,
		ChainLength: chainLen,
		UpdatedAt:   ts,
	})
}

// clampTimestamp replaces a log time too far from the receipt time with the
// receipt time. A zero bound disables that side.
func clampTimestamp(ts, now time.Time, maxPast, maxFuture time.Duration) time.Time {
	if ts.IsZero() {
		return now
	}
	if maxPast > 0 && now.Sub(ts) > maxPast {
		return now
	}
	if maxFuture > 0 && ts.Sub(now) > maxFuture {
		return now
	}
	return ts
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
