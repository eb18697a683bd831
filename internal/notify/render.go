package notify

import (
	"fmt"
	"strings"
	"time"

	"antitrigger/internal/model"
)

// MaxMessageRunes is the Discord message content limit.
const MaxMessageRunes = 2000

// Render builds the text payload for alert. Delivery limits are applied by
// each notifier, not here.
func Render(alert model.Alert, mentionEveryone bool) string {
	var b strings.Builder
	if mentionEveryone {
		b.WriteString("@everyone ")
	}
	switch alert.Kind {
	case model.AlertSpamBurst:
		renderBurst(&b, alert)
	case model.AlertSalaryDump, model.AlertSalaryLegit:
		renderChain(&b, alert)
	default:
		fmt.Fprintf(&b, "**ALERT %s** key %s\n", alert.Kind, alert.Key)
	}
	if alert.Raw != "" {
		b.WriteString("**Full message captured:**\n```\n")
		b.WriteString(alert.Raw)
		b.WriteString("\n```")
	}
	return b.String()
}

func renderBurst(b *strings.Builder, alert model.Alert) {
	b.WriteString("**ADDMONEY SPAM DETECTED!**\n")
	fmt.Fprintf(b, "**%d** matching logs received in under %d seconds.\n", alert.Count, alert.WindowSec)
	if alert.ActorID != "" {
		fmt.Fprintf(b, "Citizen ID: `%s`\n", alert.ActorID)
	}
	if alert.Occurrence > 1 {
		fmt.Fprintf(b, "Occurrence **#%d** for this key in the current period.\n", alert.Occurrence)
	}
	if alert.Snippet != "" {
		b.WriteString("\n**Matched snippet:**\n```\n")
		b.WriteString(alert.Snippet)
		b.WriteString("\n```\n")
	}
}

func renderChain(b *strings.Builder, alert model.Alert) {
	if alert.Kind == model.AlertSalaryLegit {
		b.WriteString("**Recurring salary payouts**\n")
	} else {
		b.WriteString("**SUSPICIOUS PAYOUT CHAIN DETECTED!**\n")
	}
	fmt.Fprintf(b, "Citizen ID `%s` received **%d** fixed amounts at regular intervals", alert.ActorID, alert.Count)
	if total := alert.Context["total"]; total != "" {
		fmt.Fprintf(b, " totalling $%s", total)
	}
	b.WriteString(".\n")
	for i, entry := range alert.Chain {
		reason := entry.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(b, "%d. %s  $%d (%s)  %s\n", i+1,
			entry.Timestamp.UTC().Format(time.DateTime), entry.Amount, entry.MoneyType, reason)
	}
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
