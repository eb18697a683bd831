// Package extract reads AddMoney log fields out of raw event text. Everything
// here is a pure function of its input.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"antitrigger/internal/model"
)

var requiredMarkers = []string{"addmoney", "citizenid", "id", "added"}

var (
	reSnippet    = regexp.MustCompile(`(?i)(\*\*.*?added)`)
	reActor      = regexp.MustCompile(`(?i)citizenid\s*[:=]?\s*[*_` + "`" + `]*\s*([A-Za-z0-9_-]+)`)
	reAmountType = regexp.MustCompile(`(?i)\$\s*([0-9][0-9.,]*)\s*\(\s*(bank|cash)\s*\)`)
	reAmountAdd  = regexp.MustCompile(`(?i)added\s*:?\s*\$?\s*([0-9][0-9.,]*)`)
	reAmountKV   = regexp.MustCompile(`(?i)amount\s*[:=]\s*\$?\s*([0-9][0-9.,]*)`)
	reMoneyType  = regexp.MustCompile(`(?i)\(\s*(bank|cash)\s*\)|new\s+(bank|cash)\s+balance|money\s*type\s*[:=]\s*(bank|cash)`)
	reReason     = regexp.MustCompile(`(?im)reason\s*[:=]\s*(.+?)\s*$`)
	reDiscordTS  = regexp.MustCompile(`<t:([0-9]{9,13})(?::[a-zA-Z])?>`)
	reLabeledTS  = regexp.MustCompile(`(?i)(?:timestamp|time|date|data)\s*[:=]\s*([0-9]{9,13}\b|[0-9]{1,4}[-/][0-9]{1,2}[-/][0-9]{1,4}[ T][0-9]{2}:[0-9]{2}(?::[0-9]{2}(?:\.[0-9]+)?)?(?:Z|[+-][0-9]{2}:?[0-9]{2})?)`)
	reISOTS      = regexp.MustCompile(`([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9]{2}:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?(?:Z|[+-][0-9]{2}:?[0-9]{2})?)`)
)

// HasMinimumShape reports whether text carries every marker an AddMoney log
// needs before any classification is attempted.
func HasMinimumShape(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range requiredMarkers {
		if !strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// Extract returns the fields of ev, or false when the text does not have the
// minimum AddMoney shape. Absent fields stay nil.
func Extract(ev model.RawEvent, loc *time.Location) (*model.ExtractedFields, bool) {
	text := ev.Text
	if !HasMinimumShape(text) {
		return nil, false
	}
	fields := &model.ExtractedFields{
		MoneyType: model.MoneyUnknown,
		Raw:       text,
	}
	if m := reSnippet.FindStringSubmatch(text); m != nil {
		fields.SnippetKey = strPtr(m[1])
	}
	if m := reActor.FindStringSubmatch(text); m != nil {
		fields.ActorID = strPtr(m[1])
	}
	if m := reAmountType.FindStringSubmatch(text); m != nil {
		if amount, ok := parseAmount(m[1]); ok {
			fields.Amount = &amount
		}
		fields.MoneyType = moneyType(m[2])
	}
	if fields.Amount == nil {
		for _, re := range []*regexp.Regexp{reAmountAdd, reAmountKV} {
			if m := re.FindStringSubmatch(text); m != nil {
				if amount, ok := parseAmount(m[1]); ok {
					fields.Amount = &amount
					break
				}
			}
		}
	}
	if fields.MoneyType == model.MoneyUnknown {
		if m := reMoneyType.FindStringSubmatch(text); m != nil {
			fields.MoneyType = moneyType(m[1] + m[2] + m[3])
		}
	}
	if m := reReason.FindStringSubmatch(text); m != nil {
		if reason := cleanReason(m[1]); reason != "" {
			fields.Reason = &reason
		}
	}
	fields.EventTime, fields.HasLogTime = eventTime(text, ev.ReceivedAt, loc)
	return fields, true
}

// Extractor binds the parser timezone so callers can pass events only.
type Extractor struct {
	loc *time.Location
}

func New(timezone string) *Extractor {
	return &Extractor{loc: LoadLocation(timezone)}
}

func (x *Extractor) Extract(ev model.RawEvent) (*model.ExtractedFields, bool) {
	return Extract(ev, x.loc)
}

func eventTime(text string, receivedAt time.Time, loc *time.Location) (time.Time, bool) {
	if m := reDiscordTS.FindStringSubmatch(text); m != nil {
		if ts, err := parseUnix(m[1]); err == nil {
			return ts.UTC(), true
		}
	}
	for _, re := range []*regexp.Regexp{reLabeledTS, reISOTS} {
		if m := re.FindStringSubmatch(text); m != nil {
			if ts, err := ParseTimestamp(m[1], loc); err == nil {
				return ts.UTC(), true
			}
		}
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return receivedAt.UTC(), false
}

func moneyType(v string) model.MoneyType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "bank":
		return model.MoneyBank
	case "cash":
		return model.MoneyCash
	}
	return model.MoneyUnknown
}

// parseAmount reads "1,500", "1.500" and "1500.00" as 1500. A trailing
// separator followed by one or two digits is taken as the cents part.
func parseAmount(v string) (int64, bool) {
	v = strings.Trim(v, ".,")
	if v == "" {
		return 0, false
	}
	if i := strings.LastIndexAny(v, ".,"); i >= 0 && len(v)-i-1 <= 2 {
		v = v[:i]
	}
	v = strings.NewReplacer(",", "", ".", "").Replace(v)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func cleanReason(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), "*_`\"'"))
}

func strPtr(s string) *string {
	return &s
}
