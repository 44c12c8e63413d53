// Package runguard rejects re-entrant producer runs within one process.
package runguard

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Guard is a mutex-guarded set of in-flight scope keys.
// It is not a distributed lock: a second process is not excluded.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	logger   zerolog.Logger
}

// New creates an empty Guard.
func New(logger zerolog.Logger) *Guard {
	return &Guard{
		inFlight: make(map[string]struct{}),
		logger:   logger,
	}
}

// ScopeKey builds the key producer|study|user|sorted(taskIDs).
func ScopeKey(producer, studyKey, userKey string, taskIDs []int) string {
	ids := append([]int(nil), taskIDs...)
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return producer + "|" + studyKey + "|" + userKey + "|" + strings.Join(parts, ",")
}

// TryEnter marks key as in flight. It returns false when a run for the same
// key is already in flight; the caller must not queue behind it.
func (g *Guard) TryEnter(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[key]; busy {
		g.logger.Warn().Str("scope", key).Msg("run already in progress, rejecting")
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

// Exit clears key. Call it on every exit path of an admitted run.
func (g *Guard) Exit(key string) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}
