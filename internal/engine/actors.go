package engine

import (
	"strings"

	"antitrigger/internal/config"
)

// ActorSet lists actor ids exempt from correlation, such as staff accounts
// whose grants are expected.
type ActorSet struct {
	ignored map[string]struct{}
}

func buildActorSet(cfg *config.Config) *ActorSet {
	set := &ActorSet{}
	for _, v := range cfg.Detection.IgnoreActors {
		id := normalizeActor(v)
		if id == "" {
			continue
		}
		if set.ignored == nil {
			set.ignored = make(map[string]struct{}, len(cfg.Detection.IgnoreActors))
		}
		set.ignored[id] = struct{}{}
	}
	return set
}

func (a *ActorSet) Ignored(actor string) bool {
	if a == nil || a.ignored == nil || actor == "" {
		return false
	}
	_, ok := a.ignored[normalizeActor(actor)]
	return ok
}

func normalizeActor(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
