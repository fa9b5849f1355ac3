package convo

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querychat/internal/domain"
)

func entry(templateID, channel string) Entry {
	return Entry{
		TemplateID: templateID,
		Parameters: domain.ExtractedParams{
			"channel": {Raw: channel, Typed: channel},
		},
		AskedAt: time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecordAndLast(t *testing.T) {
	m := NewManager(time.Hour, 5)
	defer m.Stop()

	_, ok := m.Last("u/s")
	assert.False(t, ok)

	m.Record("u/s", entry("sales_by_channel", "online"))
	m.Record("u/s", entry("top_products", "retail"))

	last, ok := m.Last("u/s")
	require.True(t, ok)
	assert.Equal(t, "top_products", last.TemplateID)
}

func TestRecordTrimsToHistoryDepth(t *testing.T) {
	m := NewManager(time.Hour, 2)
	defer m.Stop()

	m.Record("u/s", entry("a", "online"))
	m.Record("u/s", entry("b", "online"))
	m.Record("u/s", entry("c", "online"))

	s := m.session("u/s")
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.entries, 2)
	assert.Equal(t, "b", s.entries[0].TemplateID)
	assert.Equal(t, "c", s.entries[1].TemplateID)
}

func TestLastValueSearchesNewestFirstAndMarksContext(t *testing.T) {
	m := NewManager(time.Hour, 5)
	defer m.Stop()

	m.Record("u/s", entry("a", "online"))
	m.Record("u/s", entry("b", "retail"))

	v, ok := m.LastValue("u/s", "channel")
	require.True(t, ok)
	assert.Equal(t, "retail", v.Typed)
	assert.True(t, v.FromContext)

	_, ok = m.LastValue("u/s", "unknown")
	assert.False(t, ok)
}

func TestSessionsAreIsolated(t *testing.T) {
	m := NewManager(time.Hour, 5)
	defer m.Stop()

	m.Record("u/one", entry("a", "online"))

	_, ok := m.Last("u/two")
	assert.False(t, ok)
}

func TestClearDropsSession(t *testing.T) {
	m := NewManager(time.Hour, 5)
	defer m.Stop()

	m.Record("u/s", entry("a", "online"))
	m.Clear("u/s")

	_, ok := m.Last("u/s")
	assert.False(t, ok)
}

func TestLastReturnsACopy(t *testing.T) {
	m := NewManager(time.Hour, 5)
	defer m.Stop()

	m.Record("u/s", entry("a", "online"))

	last, ok := m.Last("u/s")
	require.True(t, ok)
	last.Parameters["channel"] = domain.ExtractedValue{Raw: "mutated", Typed: "mutated"}

	again, _ := m.Last("u/s")
	assert.Equal(t, "online", again.Parameters["channel"].Typed)
}

func TestConcurrentRecordsSameSession(t *testing.T) {
	m := NewManager(time.Hour, 100)
	defer m.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Record("u/s", entry(fmt.Sprintf("t%d", i), "online"))
		}(i)
	}
	wg.Wait()

	s := m.session("u/s")
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.entries, 50)
}
