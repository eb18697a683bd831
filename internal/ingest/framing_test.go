package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

func TestFramerLineMode(t *testing.T) {
	f := NewFramer(config.ParserConfig{Framing: "line"})
	if _, ok := f.Push("   \r\n"); ok {
		t.Fatalf("blank line should not produce a record")
	}
	rec, ok := f.Push("hello\r\n")
	if !ok || rec != "hello" {
		t.Fatalf("unexpected record %q %v", rec, ok)
	}
	if f.Pending() {
		t.Fatalf("line mode never buffers")
	}
}

func TestFramerBlockMode(t *testing.T) {
	f := NewFramer(config.ParserConfig{Framing: "block", MaxBlockLines: 3})
	for _, line := range []string{"**Admin** added $500 (bank)", "AddMoney"} {
		if _, ok := f.Push(line); ok {
			t.Fatalf("block closed early")
		}
	}
	rec, ok := f.Push("")
	if !ok || rec != "**Admin** added $500 (bank)\nAddMoney" {
		t.Fatalf("unexpected block %q", rec)
	}
	f.Push("a")
	f.Push("b")
	rec, ok = f.Push("c")
	if !ok || rec != "a\nb\nc" {
		t.Fatalf("max lines should close the block, got %q", rec)
	}
	if _, ok := f.Flush(); ok {
		t.Fatalf("nothing should be pending")
	}
}

func TestStreamRecordsFlushesTrailingBlock(t *testing.T) {
	out := make(chan model.RawEvent, 4)
	input := "one\ntwo\n\nthree\n"
	framer := NewFramer(config.ParserConfig{Framing: "block"})
	if err := streamRecords(context.Background(), strings.NewReader(input), framer, nil, NewParser("UTC"), "tcp_stream", out, nil); err != nil {
		t.Fatalf("stream: %v", err)
	}
	close(out)
	var texts []string
	for ev := range out {
		if ev.Source != "tcp_stream" {
			t.Fatalf("unexpected source %q", ev.Source)
		}
		texts = append(texts, ev.Text)
	}
	if len(texts) != 2 || texts[0] != "one\ntwo" || texts[1] != "three" {
		t.Fatalf("unexpected records %q", texts)
	}
}

func TestSyslogMessage(t *testing.T) {
	cases := map[string]string{
		`<134>1 2024-03-01T10:00:00Z host fivem - - - **Admin** added $5`:      "**Admin** added $5",
		`<134>1 2024-03-01T10:00:00Z host fivem 12 ID47 [meta x="1"] AddMoney`: "AddMoney",
		`57 <134>1 2024-03-01T10:00:00Z host fivem - - - AddMoney`:             "AddMoney",
		`<13>Mar  1 10:00:00 host fivem[42]: AddMoney\nCitizenID: ABC`:         `AddMoney\nCitizenID: ABC`,
		`plain AddMoney text`: "plain AddMoney text",
	}
	for in, want := range cases {
		if got := syslogMessage(in); got != want {
			t.Fatalf("syslogMessage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKafkaEvent(t *testing.T) {
	p := NewParser("UTC")
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ev, ok := kafkaEvent(p, kafka.Message{
		Topic:     "addmoney",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`AddMoney\nCitizenID: ABC`),
		Time:      ts,
		Headers:   []kafka.Header{{Key: "Source", Value: []byte("fivem-eu")}},
	})
	if !ok || ev.Source != "fivem-eu" || !ev.ReceivedAt.Equal(ts) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.DeliveryID != "addmoney/2/41" {
		t.Fatalf("delivery id from offset: %q", ev.DeliveryID)
	}
	ev, ok = kafkaEvent(p, kafka.Message{Value: []byte("AddMoney")})
	if !ok || ev.Source != "kafka" || ev.ReceivedAt.IsZero() {
		t.Fatalf("unexpected default event %+v", ev)
	}
	if _, ok := kafkaEvent(p, kafka.Message{Value: []byte("  ")}); ok {
		t.Fatalf("blank value should be skipped")
	}
	if backoff(100) != 5*time.Second || backoff(1) != 250*time.Millisecond {
		t.Fatalf("unexpected backoff")
	}
}
