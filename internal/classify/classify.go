package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

// Rules holds the fixed salary amount set and the legitimate reason set.
type Rules struct {
	amounts map[int64]struct{}
	reasons map[string]struct{}
}

func NewRules(amounts []int64, reasons []string) *Rules {
	r := &Rules{
		amounts: make(map[int64]struct{}, len(amounts)),
		reasons: make(map[string]struct{}, len(reasons)),
	}
	for _, a := range amounts {
		r.amounts[a] = struct{}{}
	}
	for _, reason := range reasons {
		reason = normalizeReason(reason)
		if reason == "" {
			continue
		}
		r.reasons[reason] = struct{}{}
	}
	return r
}

func FromConfig(cfg config.DetectionConfig) *Rules {
	return NewRules(cfg.SalaryAmounts, cfg.LegitReasons)
}

func (r *Rules) IsSalaryAmount(amount int64) bool {
	_, ok := r.amounts[amount]
	return ok
}

func (r *Rules) IsLegitReason(reason string) bool {
	_, ok := r.reasons[normalizeReason(reason)]
	return ok
}

// Classify decides which branches an extracted event feeds. The salary
// branches are mutually exclusive; spam candidacy is independent of them.
func (r *Rules) Classify(fields *model.ExtractedFields) model.Classification {
	out := model.Classification{Salary: model.CategoryUnclassified, MoneyType: model.MoneyUnknown}
	if fields == nil {
		return out
	}
	out.MoneyType = fields.MoneyType
	if fields.Amount != nil {
		out.Amount = *fields.Amount
	}
	if fields.Reason != nil {
		out.Reason = *fields.Reason
	}

	out.SpamKey = SpamKey(fields)
	out.SpamCandidate = out.SpamKey != ""
	// Legitimately repeated payouts never raise a spam alert, they only count.
	out.SpamAlertable = out.SpamCandidate && (fields.Reason == nil || !r.IsLegitReason(*fields.Reason))

	if !fields.MoneyType.Known() || fields.Amount == nil || fields.Reason == nil {
		return out
	}
	if !r.IsSalaryAmount(*fields.Amount) {
		return out
	}
	if r.IsLegitReason(*fields.Reason) {
		out.Salary = model.CategorySalaryLegit
	} else {
		out.Salary = model.CategorySalaryDump
	}
	return out
}

// SpamKey is the actor id when present, otherwise a stable hash of the snippet.
func SpamKey(fields *model.ExtractedFields) string {
	if fields == nil {
		return ""
	}
	if actor := ActorKey(fields); actor != "" {
		return "actor:" + actor
	}
	if fields.SnippetKey != nil && *fields.SnippetKey != "" {
		return "snippet:" + HashSnippet(*fields.SnippetKey)
	}
	return ""
}

// ActorKey is the normalized actor id, or "" when the event carries none.
func ActorKey(fields *model.ExtractedFields) string {
	if fields == nil || fields.ActorID == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*fields.ActorID))
}

func HashSnippet(snippet string) string {
	h := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(h[:16])
}

func normalizeReason(reason string) string {
	return strings.ToLower(strings.Join(strings.Fields(reason), " "))
}
