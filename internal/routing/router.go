package routing

import (
	"log/slog"

	"alertrouter/internal/config"
)

// Router applies the ordered routing rule list to alert labels.
// Params: rules in file order, shared matcher, and warning log.
// Returns: stateless router safe for concurrent use.
type Router struct {
	rules   []config.RoutingRule
	matcher *Matcher
	log     *slog.Logger
}

// NewRouter builds a Router over the configured rule list.
// Params: rules from the loaded config, matcher, and log destination.
// Returns: ready router.
func NewRouter(rules []config.RoutingRule, matcher *Matcher, log *slog.Logger) *Router {
	return &Router{rules: rules, matcher: matcher, log: log}
}

// Route resolves the destination channel set for one alert's labels.
// Params: labels is the flattened label view including _source/_receiver.
// Returns: deduplicated channel names in first-added order; the first
// default rule's channels apply only when no match rule fired, and an empty
// result is a configuration signal, not an error.
func (r *Router) Route(labels map[string]string) []string {
	var (
		matched  []string
		seen     = map[string]bool{}
		fallback []string
		haveDflt bool
	)

	for i, rule := range r.rules {
		if rule.Default && len(rule.Match) == 0 {
			if haveDflt {
				r.log.Warn("ignoring extra default routing rule, first wins", "rule", i)
				continue
			}
			haveDflt = true
			fallback = rule.SendTo
			continue
		}
		if !r.matcher.Match(labels, rule.Match) {
			continue
		}
		for _, name := range rule.SendTo {
			if seen[name] {
				continue
			}
			seen[name] = true
			matched = append(matched, name)
		}
	}

	if len(matched) > 0 {
		return matched
	}
	if haveDflt {
		out := make([]string, 0, len(fallback))
		for _, name := range fallback {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
		return out
	}

	r.log.Warn("no routing rule matched and no default rule configured",
		"alertname", labels["alertname"])
	return nil
}
