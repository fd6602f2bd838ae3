package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Seen-envelope hashes are retained for twice the replay window so
	// a duplicate arriving near the window edge is still caught.
	replayRetentionFactor = 2

	// Cache size cap prevents memory exhaustion from a hostile peer.
	maxReplayCacheSize = 10000

	replayCleanupInterval = 60 * time.Second
)

// replayGuard rejects stale and duplicate envelopes for one session.
// Each approval gate owns its own guard; nothing here is shared across
// sessions or process-global.
type replayGuard struct {
	window time.Duration
	skew   time.Duration
	log    zerolog.Logger

	mu          sync.Mutex
	seen        map[[32]byte]time.Time
	lastCleanup time.Time
}

func newReplayGuard(window, skew time.Duration, log zerolog.Logger) *replayGuard {
	return &replayGuard{
		window:      window,
		skew:        skew,
		log:         log,
		seen:        make(map[[32]byte]time.Time),
		lastCleanup: time.Now(),
	}
}

// checkFresh validates an authenticated millisecond timestamp against
// the replay window, allowing bounded clock skew into the future.
func (g *replayGuard) checkFresh(tsMillis int64, now time.Time) (bool, string) {
	age := now.Sub(time.UnixMilli(tsMillis))
	if age > g.window {
		return false, "request timestamp expired"
	}
	if age < -g.skew {
		return false, "request timestamp in the future"
	}
	return true, ""
}

// checkDuplicate atomically records the envelope hash and reports
// whether it was seen before. Returns true if the envelope is new.
func (g *replayGuard) checkDuplicate(env *Envelope) (bool, string) {
	hash := envelopeHash(env)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Sub(g.lastCleanup) > replayCleanupInterval {
		g.cleanupLocked(now)
		g.lastCleanup = now
	}

	if firstSeen, exists := g.seen[hash]; exists {
		g.log.Warn().
			Str("hash", hex.EncodeToString(hash[:8])).
			Dur("age_since_first", now.Sub(firstSeen)).
			Msg("SECURITY: Replay detected - duplicate envelope")
		return false, "duplicate envelope"
	}

	if len(g.seen) >= maxReplayCacheSize {
		g.cleanupLocked(now)
		if len(g.seen) >= maxReplayCacheSize {
			g.log.Warn().
				Int("cache_size", len(g.seen)).
				Msg("SECURITY: Replay cache full - forcing cleanup")
			g.aggressiveCleanupLocked()
		}
	}

	g.seen[hash] = now
	return true, ""
}

// cleanupLocked removes entries older than the retention period.
// Caller must hold the lock.
func (g *replayGuard) cleanupLocked(now time.Time) {
	cutoff := now.Add(-replayRetentionFactor * g.window)
	removed := 0
	for hash, ts := range g.seen {
		if ts.Before(cutoff) {
			delete(g.seen, hash)
			removed++
		}
	}
	if removed > 0 {
		g.log.Debug().
			Int("removed", removed).
			Int("remaining", len(g.seen)).
			Msg("Replay cache cleanup completed")
	}
}

// aggressiveCleanupLocked evicts the oldest 20% of entries. Caller must
// hold the lock.
func (g *replayGuard) aggressiveCleanupLocked() {
	target := len(g.seen) / 5
	if target == 0 {
		return
	}

	removed := 0
	for removed < target {
		var oldestHash [32]byte
		oldest := time.Now()
		for hash, ts := range g.seen {
			if ts.Before(oldest) {
				oldest = ts
				oldestHash = hash
			}
		}
		delete(g.seen, oldestHash)
		removed++
	}

	g.log.Warn().
		Int("removed", removed).
		Int("remaining", len(g.seen)).
		Msg("SECURITY: Aggressive replay cache cleanup completed")
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// envelopeHash fingerprints an envelope by nonce and ciphertext. A
// fresh seal always draws a new nonce, so equal hashes mean the same
// sealed bytes were sent twice.
func envelopeHash(env *Envelope) [32]byte {
	h := sha256.New()
	h.Write(env.Nonce)
	h.Write([]byte(":"))
	h.Write(env.Ciphertext)
	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash
}
