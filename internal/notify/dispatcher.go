package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"antitrigger/internal/config"
	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
)

// Dispatcher fans every alert out to all configured destinations on a worker
// pool. Each destination has its own circuit breaker, and a failure at one
// destination never affects the others.
type Dispatcher struct {
	logger    *slog.Logger
	notifiers map[string]Notifier
	pool      *workerPool[model.Alert]

	mu       sync.Mutex
	cfg      config.NotifyConfig
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewDispatcher(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dispatcher{
		logger:    logger,
		notifiers: make(map[string]Notifier, len(notifiers)),
		cfg:       cfg,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers[n.Name()] = n
		}
	}
	d.pool = newWorkerPool(ctx, cfg.Workers, cfg.QueueSize, d.Deliver)
	return d
}

// Notify queues alert for delivery without blocking.
func (d *Dispatcher) Notify(alert model.Alert) {
	if d.pool.Submit(alert) {
		return
	}
	metrics.Deliveries.WithLabelValues("queue", "dropped").Inc()
	d.logger.Warn("notification queue full, alert not delivered", "id", alert.ID, "kind", alert.Kind)
}

// UpdateConfig swaps destinations and delivery settings. Breakers of
// destinations that remain configured keep their state.
func (d *Dispatcher) UpdateConfig(cfg config.NotifyConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Breaker != d.cfg.Breaker {
		d.breakers = make(map[string]*gobreaker.CircuitBreaker[struct{}])
	}
	d.cfg = cfg
}

// Close stops accepting alerts and waits for queued deliveries.
func (d *Dispatcher) Close() {
	d.pool.Drain()
}

// Deliver renders alert once and sends it to every destination. The joined
// error reports each failed destination.
func (d *Dispatcher) Deliver(ctx context.Context, alert model.Alert) error {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	payload := Render(alert, cfg.MentionEveryone)
	var errs []error
	for _, dest := range cfg.Destinations {
		if err := d.send(ctx, cfg, dest, payload, string(alert.Kind)); err != nil {
			errs = append(errs, err)
			metrics.Deliveries.WithLabelValues(dest.Notifier, "failed").Inc()
			d.logger.Warn("alert delivery failed",
				"id", alert.ID,
				"notifier", dest.Notifier,
				"destination", dest.Target,
				"err", err,
			)
			continue
		}
		metrics.Deliveries.WithLabelValues(dest.Notifier, "sent").Inc()
		d.logger.Info("alert delivered", "id", alert.ID, "notifier", dest.Notifier, "destination", dest.Target)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, cfg config.NotifyConfig, dest config.DestinationConfig, payload, kind string) error {
	n, ok := d.notifiers[strings.ToLower(dest.Notifier)]
	if !ok {
		return fmt.Errorf("notifier %q not available", dest.Notifier)
	}
	cb := d.breaker(dest, cfg.Breaker)
	_, err := cb.Execute(func() (struct{}, error) {
		sendCtx := ctx
		if cfg.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
			defer cancel()
		}
		return struct{}{}, n.Send(sendCtx, dest.Target, payload, kind)
	})
	return err
}

// BreakerState reports the breaker state for a destination, or "closed" if
// it has not been used yet.
func (d *Dispatcher) BreakerState(dest config.DestinationConfig) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[breakerName(dest)]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

func (d *Dispatcher) breaker(dest config.DestinationConfig, bc config.BreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	name := breakerName(dest)
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[name]; ok {
		return cb
	}
	threshold := bc.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := bc.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("notifier breaker state changed", "destination", name, "from", from.String(), "to", to.String())
		},
	})
	d.breakers[name] = cb
	return cb
}

func breakerName(dest config.DestinationConfig) string {
	return dest.Notifier + ":" + dest.Target
}
