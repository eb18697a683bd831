package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/goccy/go-json"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

type fakeNotifier struct {
	name string
	err  error

	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, destination, payload, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, destination)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func spamAlert() model.Alert {
	return model.Alert{
		ID:        "a1",
		Kind:      model.AlertSpamBurst,
		Key:       "actor:ABC",
		ActorID:   "ABC",
		Snippet:   "**Admin** added",
		Count:     2,
		WindowSec: 120,
		Raw:       "full log",
	}
}

func TestRenderBurst(t *testing.T) {
	out := Render(spamAlert(), true)
	if !strings.HasPrefix(out, "@everyone ") {
		t.Fatalf("expected mention prefix, got %q", out)
	}
	for _, want := range []string{"**2**", "120 seconds", "**Admin** added", "full log"} {
		if !strings.Contains(out, want) {
			t.Fatalf("payload missing %q: %s", want, out)
		}
	}
	if strings.HasPrefix(Render(spamAlert(), false), "@everyone") {
		t.Fatalf("mention should be optional")
	}
}

func TestRenderChain(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	alert := model.Alert{
		Kind:    model.AlertSalaryDump,
		ActorID: "XYZ",
		Count:   2,
		Chain: []model.ChainEntry{
			{Timestamp: ts, Amount: 500, MoneyType: model.MoneyBank, Reason: "transfer"},
			{Timestamp: ts.Add(30 * time.Minute), Amount: 500, MoneyType: model.MoneyBank, Reason: "transfer"},
		},
		Context: map[string]string{"total": "1000"},
	}
	out := Render(alert, false)
	for _, want := range []string{"XYZ", "$1000", "2024-03-01 10:30:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("payload missing %q: %s", want, out)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncate("ééééé", 3); got != "ééé" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("short input changed: %q", got)
	}
}

func TestDispatcherContinuesPastFailedDestination(t *testing.T) {
	bad := &fakeNotifier{name: "webhook", err: errors.New("boom")}
	good := &fakeNotifier{name: "discord"}
	cfg := config.DefaultConfig().Notify
	cfg.RateLimit = 0
	cfg.Destinations = []config.DestinationConfig{
		{Notifier: "webhook", Target: "https://example.invalid/hook"},
		{Notifier: "discord", Target: "123"},
		{Notifier: "discord", Target: "456"},
	}
	d := NewDispatcher(context.Background(), cfg, nil, bad, good)
	err := d.Deliver(context.Background(), spamAlert())
	if err == nil {
		t.Fatalf("expected joined error from failed destination")
	}
	if good.count() != 2 {
		t.Fatalf("expected both discord channels to receive, got %d", good.count())
	}
	d.Close()
}

func TestDispatcherBreakerOpens(t *testing.T) {
	bad := &fakeNotifier{name: "webhook", err: errors.New("down")}
	cfg := config.DefaultConfig().Notify
	cfg.Breaker = config.BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}
	cfg.Destinations = []config.DestinationConfig{{Notifier: "webhook", Target: "u"}}
	d := NewDispatcher(context.Background(), cfg, nil, bad)
	defer d.Close()
	for i := 0; i < 5; i++ {
		_ = d.Deliver(context.Background(), spamAlert())
	}
	if bad.count() != 2 {
		t.Fatalf("expected breaker to stop calls after 2 failures, got %d", bad.count())
	}
	if state := d.BreakerState(cfg.Destinations[0]); state != "open" {
		t.Fatalf("expected open breaker, got %s", state)
	}
}

func TestDispatcherNotifyDrainsOnClose(t *testing.T) {
	good := &fakeNotifier{name: "discord"}
	cfg := config.DefaultConfig().Notify
	cfg.Workers = 1
	cfg.Destinations = []config.DestinationConfig{{Notifier: "discord", Target: "1"}}
	d := NewDispatcher(context.Background(), cfg, nil, good)
	d.Notify(spamAlert())
	d.Notify(spamAlert())
	d.Close()
	if good.count() != 2 {
		t.Fatalf("expected queued alerts delivered before close, got %d", good.count())
	}
	d.Notify(spamAlert())
	if good.count() != 2 {
		t.Fatalf("notify after close should be dropped")
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(time.Second, 0)
	long := strings.Repeat("x", MaxMessageRunes+50)
	if err := n.Send(context.Background(), srv.URL, long, "spam_burst"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len([]rune(got.Content)) != MaxMessageRunes {
		t.Fatalf("expected truncated content, got %d runes", len([]rune(got.Content)))
	}
}

func TestWebhookNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	if err := NewWebhookNotifier(time.Second, 0).Send(context.Background(), srv.URL, "hi", ""); err == nil {
		t.Fatalf("expected error for 429")
	}
}

type fakeSession struct {
	channel string
	content string
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel, f.content = channelID, content
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestDiscordNotifier(t *testing.T) {
	sess := &fakeSession{}
	n := NewDiscordNotifier(sess, 0)
	if err := n.Send(context.Background(), "999", "hello", "spam_burst"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sess.channel != "999" || sess.content != "hello" {
		t.Fatalf("unexpected delivery %+v", sess)
	}
	if err := n.Send(context.Background(), "", "hello", ""); err == nil {
		t.Fatalf("expected error for empty channel")
	}
}
