package model

import "time"

type MoneyType string

const (
	MoneyUnknown MoneyType = "unknown"
	MoneyBank    MoneyType = "bank"
	MoneyCash    MoneyType = "cash"
)

func (m MoneyType) Known() bool {
	return m == MoneyBank || m == MoneyCash
}

type Category string

const (
	CategoryUnclassified Category = "unclassified"
	CategorySpam         Category = "spam"
	CategorySalaryDump   Category = "salary_dump"
	CategorySalaryLegit  Category = "salary_legit"
)

// RawEvent is one text segment handed over by an event source. DeliveryID
// identifies the transport delivery (a Discord message id, a Kafka offset)
// when the source has one; identical log text never implies the same
// delivery.
type RawEvent struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source,omitempty"`
	DeliveryID string    `json:"delivery_id,omitempty"`
}

// ExtractedFields holds what the extractor could read from a RawEvent.
// Pointer fields are nil when the text did not carry them.
type ExtractedFields struct {
	SnippetKey *string   `json:"snippet_key,omitempty"`
	ActorID    *string   `json:"actor_id,omitempty"`
	MoneyType  MoneyType `json:"money_type"`
	Amount     *int64    `json:"amount,omitempty"`
	Reason     *string   `json:"reason,omitempty"`
	EventTime  time.Time `json:"event_time"`
	HasLogTime bool      `json:"has_log_time"`
	Raw        string    `json:"raw,omitempty"`
}

type Classification struct {
	Salary        Category  `json:"salary"`
	SpamCandidate bool      `json:"spam_candidate"`
	SpamAlertable bool      `json:"spam_alertable"`
	SpamKey       string    `json:"spam_key,omitempty"`
	MoneyType     MoneyType `json:"money_type"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
}

// Primary collapses the classification to a single category. Salary
// branches win over spam candidacy.
func (c Classification) Primary() Category {
	switch c.Salary {
	case CategorySalaryDump, CategorySalaryLegit:
		return c.Salary
	}
	if c.SpamCandidate {
		return CategorySpam
	}
	return CategoryUnclassified
}

type ChainEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	MoneyType  MoneyType `json:"money_type"`
	RawContent string    `json:"raw_content"`
}

// AlertMemo remembers the state that last produced an alert for a key.
type AlertMemo struct {
	Signature  string      `json:"signature,omitempty"`
	Members    []time.Time `json:"members,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

type ChainRecord struct {
	Entries     []ChainEntry `json:"entries"`
	LastAlerted *AlertMemo   `json:"last_alerted,omitempty"`
}

// SpamRecord is the persisted burst state for one key.
type SpamRecord struct {
	Timestamps []time.Time    `json:"timestamps"`
	Memo       *AlertMemo     `json:"memo,omitempty"`
	Counters   map[string]int `json:"counters,omitempty"`
	Snippet    string         `json:"snippet,omitempty"`
}

type AlertKind string

const (
	AlertSpamBurst   AlertKind = "spam_burst"
	AlertSalaryDump  AlertKind = "salary_dump_chain"
	AlertSalaryLegit AlertKind = "salary_legit_chain"
)

type Alert struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       AlertKind         `json:"kind"`
	Severity   string            `json:"severity"`
	Key        string            `json:"key"`
	ActorID    string            `json:"actor_id,omitempty"`
	Snippet    string            `json:"snippet,omitempty"`
	Count      int               `json:"count"`
	WindowSec  int               `json:"window_sec,omitempty"`
	Occurrence int               `json:"occurrence,omitempty"`
	Chain      []ChainEntry      `json:"chain,omitempty"`
	Raw        string            `json:"raw,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// KeyStats is the latest correlation snapshot for a key.
type KeyStats struct {
	Key         string    `json:"key"`
	Category    Category  `json:"category"`
	Count       int       `json:"count"`
	ChainLength int       `json:"chain_length"`
	UpdatedAt   time.Time `json:"updated_at"`
}
