package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"antitrigger/internal/extract"
	"antitrigger/internal/model"
)

var reSyslogHeader = regexp.MustCompile(`^<[0-9]{1,3}>(?:1 )?`)

var (
	textKeys     = []string{"text", "content", "message", "msg", "log"}
	receivedKeys = []string{"received_at", "timestamp", "time", "ts"}
	deliveryKeys = []string{"delivery_id", "message_id", "id"}
)

// Parser turns transport payloads into raw events. A payload is either a
// JSON envelope or plain log text. Line oriented transports cannot carry
// newlines, so the two character sequence \n in plain text is unescaped.
type Parser struct {
	loc atomic.Pointer[time.Location]
}

func NewParser(timezone string) *Parser {
	p := &Parser{}
	p.SetTimezone(timezone)
	return p
}

// SetTimezone changes the zone used for envelope timestamps without an
// offset. Safe to call while transports are parsing.
func (p *Parser) SetTimezone(timezone string) {
	p.loc.Store(extract.LoadLocation(timezone))
}

func (p *Parser) ParseLine(line string, receivedAt time.Time) (model.RawEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.RawEvent{}, false
	}
	line = reSyslogHeader.ReplaceAllString(line, "")
	if strings.HasPrefix(line, "{") {
		if ev, err := p.ParseJSON([]byte(line), receivedAt); err == nil {
			return ev, true
		}
	}
	text := strings.ReplaceAll(line, `\n`, "\n")
	return model.RawEvent{Text: text, ReceivedAt: receivedAt}, true
}

func (p *Parser) ParseJSON(data []byte, receivedAt time.Time) (model.RawEvent, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return model.RawEvent{}, err
	}
	return p.ParseMap(obj, receivedAt)
}

// ParseMap reads an envelope. Text comes from the first text-like key, or
// from embed titles and descriptions concatenated in order.
func (p *Parser) ParseMap(obj map[string]any, receivedAt time.Time) (model.RawEvent, error) {
	lowered := make(map[string]any, len(obj))
	for k, v := range obj {
		lowered[strings.ToLower(k)] = v
	}
	ev := model.RawEvent{ReceivedAt: receivedAt}
	if s, ok := lowered["source"].(string); ok {
		ev.Source = s
	}
	for _, key := range deliveryKeys {
		if id := deliveryID(lowered[key]); id != "" {
			ev.DeliveryID = id
			break
		}
	}
	for _, key := range receivedKeys {
		if ts, ok := p.timestamp(lowered[key]); ok {
			ev.ReceivedAt = ts
			break
		}
	}
	for _, key := range textKeys {
		if s, ok := lowered[key].(string); ok && strings.TrimSpace(s) != "" {
			ev.Text = s
			return ev, nil
		}
	}
	var b strings.Builder
	appendEmbed(&b, lowered)
	if list, ok := lowered["embeds"].([]any); ok {
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				appendEmbed(&b, m)
			}
		}
	}
	if b.Len() == 0 {
		return model.RawEvent{}, fmt.Errorf("envelope has no text")
	}
	ev.Text = b.String()
	return ev, nil
}

func deliveryID(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

func appendEmbed(b *strings.Builder, m map[string]any) {
	for _, key := range []string{"title", "description"} {
		if s, ok := m[key].(string); ok {
			b.WriteString(s)
		}
	}
}

func (p *Parser) timestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		if ts, err := extract.ParseTimestamp(val, p.loc.Load()); err == nil {
			return ts.UTC(), true
		}
	case float64:
		switch {
		case val >= 1e12:
			return time.UnixMilli(int64(val)).UTC(), true
		case val > 0:
			return time.Unix(int64(val), 0).UTC(), true
		}
	}
	return time.Time{}, false
}
