// Package convo holds per-session conversational context so follow-up
// questions ("what about this month?") can reuse previously resolved
// templates and parameters.
//
// Context is read-only to the parameter extractor and written only by the
// pipeline after a successful run. Writes for the same session serialize on a
// per-session lock; different sessions proceed fully in parallel. Sessions
// expire on a TTL via the backing cache.
package convo

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"querychat/internal/domain"
)

// Entry is one resolved request remembered for follow-ups.
type Entry struct {
	TemplateID string
	Parameters domain.ExtractedParams
	AskedAt    time.Time
}

// session is the mutable per-key state. Its mutex serializes same-session
// updates so concurrent follow-ups cannot overwrite context with stale data.
type session struct {
	mu      sync.Mutex
	entries []Entry
}

// Manager tracks the last N resolved entries per session key.
type Manager struct {
	cache   *ttlcache.Cache[string, *session]
	history int
}

// NewManager creates a manager retaining history entries per session, each
// session expiring ttl after its last touch.
func NewManager(ttl time.Duration, history int) *Manager {
	cache := ttlcache.New[string, *session](
		ttlcache.WithTTL[string, *session](ttl),
	)
	go cache.Start()
	return &Manager{cache: cache, history: history}
}

// Stop halts the expiry loop.
func (m *Manager) Stop() {
	m.cache.Stop()
}

// Record appends a resolved entry for the session, trimming to the retained
// history depth. Touching the session renews its TTL.
func (m *Manager) Record(key string, e Entry) {
	s := m.session(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > m.history {
		s.entries = s.entries[len(s.entries)-m.history:]
	}
}

// Last returns a copy of the most recent entry for the session.
func (m *Manager) Last(key string) (Entry, bool) {
	item := m.cache.Get(key)
	if item == nil {
		return Entry{}, false
	}
	s := item.Value()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return copyEntry(s.entries[len(s.entries)-1]), true
}

// LastValue returns the most recent remembered value for the named parameter,
// searching newest-first across the session's history.
func (m *Manager) LastValue(key, name string) (domain.ExtractedValue, bool) {
	item := m.cache.Get(key)
	if item == nil {
		return domain.ExtractedValue{}, false
	}
	s := item.Value()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if v, ok := s.entries[i].Parameters[name]; ok {
			v.FromContext = true
			return v, true
		}
	}
	return domain.ExtractedValue{}, false
}

// Clear drops the session.
func (m *Manager) Clear(key string) {
	m.cache.Delete(key)
}

func (m *Manager) session(key string) *session {
	item, _ := m.cache.GetOrSet(key, &session{})
	return item.Value()
}

func copyEntry(e Entry) Entry {
	params := make(domain.ExtractedParams, len(e.Parameters))
	for k, v := range e.Parameters {
		params[k] = v
	}
	e.Parameters = params
	return e
}
