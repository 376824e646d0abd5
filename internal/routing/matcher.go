package routing

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// regexMarkers are the characters whose presence makes a pattern count as a
// regular expression instead of a literal value.
const regexMarkers = "*^$|()[]+?{}"

// Matcher evaluates label-match conditions against flattened alert labels.
// Params: log for malformed-pattern warnings.
// Returns: stateless matcher with a shared compiled-regex cache.
type Matcher struct {
	log *slog.Logger

	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewMatcher builds a Matcher.
// Params: log destination for pattern warnings.
// Returns: matcher with an empty regex cache.
func NewMatcher(log *slog.Logger) *Matcher {
	return &Matcher{
		log:   log,
		cache: make(map[string]*regexp.Regexp),
	}
}

// Match reports whether labels satisfy every key/pattern pair in cond.
// Params: labels flattened alert labels; cond one rule's match table.
// Returns: true only when all pairs match (logical AND); an absent label key
// short-circuits the whole condition to false.
func (m *Matcher) Match(labels map[string]string, cond map[string]string) bool {
	for key, pattern := range cond {
		value, ok := labels[key]
		if !ok {
			return false
		}
		if !m.matchValue(value, pattern) {
			return false
		}
	}
	return true
}

// matchValue evaluates one label value against one pattern.
// Params: value and pattern from a rule's match table.
// Returns: regex match for regex-shaped patterns, exact equality otherwise.
func (m *Matcher) matchValue(value, pattern string) bool {
	if !isRegexPattern(pattern) {
		return value == pattern
	}

	compiled, err := m.compile(canonicalExpr(pattern))
	if err != nil {
		m.log.Warn("malformed routing pattern, falling back to exact match",
			"pattern", pattern, "err", err)
		return value == pattern
	}
	return compiled.MatchString(value)
}

// isRegexPattern classifies a pattern as regex-shaped.
// Params: raw pattern text.
// Returns: true when the pattern contains a regex marker character or starts
// or ends with the literal substring ".*".
func isRegexPattern(pattern string) bool {
	if strings.ContainsAny(pattern, regexMarkers) {
		return true
	}
	return strings.HasPrefix(pattern, ".*") || strings.HasSuffix(pattern, ".*")
}

// canonicalExpr rewrites a regex-shaped pattern into its search expression.
// Params: pattern classified as regex-shaped.
// Returns: expression evaluated with search semantics. The rewrite order is
// load-bearing: explicit anchors win, then the two-sided .* substring form,
// then the one-sided ends-with/starts-with forms.
func canonicalExpr(pattern string) string {
	switch {
	case strings.HasPrefix(pattern, "^") || strings.HasSuffix(pattern, "$"):
		return pattern
	case strings.HasPrefix(pattern, ".*") && strings.HasSuffix(pattern, ".*") && len(pattern) >= 4:
		return strings.TrimSuffix(strings.TrimPrefix(pattern, ".*"), ".*")
	case strings.HasPrefix(pattern, ".*"):
		return strings.TrimPrefix(pattern, ".*") + "$"
	case strings.HasSuffix(pattern, ".*"):
		return "^" + strings.TrimSuffix(pattern, ".*")
	default:
		return pattern
	}
}

// compile returns the cached compiled form of one expression.
// Params: canonical expression text.
// Returns: compiled regexp or compile error; successful compiles are cached
// by expression string.
func (m *Matcher) compile(expr string) (*regexp.Regexp, error) {
	m.mu.RLock()
	compiled, ok := m.cache[expr]
	m.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[expr] = compiled
	m.mu.Unlock()
	return compiled, nil
}
