package routing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alertrouter/internal/clock"
	"alertrouter/internal/config"
	"alertrouter/internal/domain"
)

// DedupCache suppresses duplicate firing notifications for the same CI build
// inside a TTL window. It is the only mutable shared state in the pipeline;
// sweep, lookup, and insert run as one critical section so two concurrent
// firing requests for the same key cannot both observe "not present".
type DedupCache struct {
	enabled         bool
	ttl             time.Duration
	clearOnResolved bool
	clk             clock.Clock
	log             *slog.Logger

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewDedupCache builds a DedupCache from config.
// Params: cfg dedup policy, clk injectable time source, log destination.
// Returns: empty cache ready for concurrent use.
func NewDedupCache(cfg config.JenkinsDedupConfig, clk clock.Clock, log *slog.Logger) *DedupCache {
	return &DedupCache{
		enabled:         cfg.Enabled,
		ttl:             time.Duration(cfg.TTLSeconds) * time.Second,
		clearOnResolved: cfg.ClearOnResolved,
		clk:             clk,
		log:             log,
		expires:         make(map[string]time.Time),
	}
}

// ShouldSkip decides whether a notification is a suppressed duplicate.
// Params: alert is the canonical alert under delivery.
// Returns: true only for a firing alert whose dedup key is still inside the
// TTL window; an allowed firing arms suppression for subsequent duplicates,
// and a resolved alert clears the key (when configured) and never skips.
func (c *DedupCache) ShouldSkip(alert domain.Alert) bool {
	if !c.enabled {
		return false
	}
	key := dedupKey(alert)
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.sweepLocked(now)

	switch alert.Status {
	case domain.StatusResolved:
		if c.clearOnResolved {
			delete(c.expires, key)
		}
		return false
	case domain.StatusFiring:
		if expiry, ok := c.expires[key]; ok && expiry.After(now) {
			c.log.Debug("suppressing duplicate jenkins firing", "key", key)
			return true
		}
		c.expires[key] = now.Add(c.ttl)
		return false
	default:
		return false
	}
}

// sweepLocked drops expired entries; caller must hold the mutex.
// Params: now is the sweep reference time.
// Returns: cache mutated in place.
func (c *DedupCache) sweepLocked(now time.Time) {
	for key, expiry := range c.expires {
		if !expiry.After(now) {
			delete(c.expires, key)
		}
	}
}

// dedupKey builds the suppression identity for one alert.
// Params: alert with flattened CI labels.
// Returns: empty string when jenkins_job or check_commitID is missing;
// otherwise the key prefers build_number, then fingerprint, then commit, so
// distinct builds of the same commit stay distinguishable when build numbers
// exist.
func dedupKey(alert domain.Alert) string {
	job := alert.Labels.Get("jenkins_job")
	commit := alert.Labels.Get("check_commitID")
	if job == "" || commit == "" {
		return ""
	}

	prefix := fmt.Sprintf("%s|%s|%s", alert.Name(), job, alert.Labels.Get("gitBranch"))
	if build := alert.Labels.Get("build_number"); build != "" {
		return fmt.Sprintf("%s|build=%s", prefix, build)
	}
	if alert.Fingerprint != "" {
		return fmt.Sprintf("%s|fp=%s", prefix, alert.Fingerprint)
	}
	return fmt.Sprintf("%s|commit=%s", prefix, commit)
}
