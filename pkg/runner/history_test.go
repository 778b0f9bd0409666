package runner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.All())
	assert.Equal(t, 0, h.Count())

	for i := 1; i <= 5; i++ {
		h.Add(RunRecord{ID: fmt.Sprintf("run-%d", i)})
	}

	assert.Equal(t, 3, h.Count())
	var ids []string
	for _, r := range h.All() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"run-5", "run-4", "run-3"}, ids, "newest first, oldest evicted")

	rec, ok := h.Get("run-4")
	require.True(t, ok)
	assert.Equal(t, "run-4", rec.ID)

	_, ok = h.Get("run-1")
	assert.False(t, ok, "evicted")
}

func TestNewHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, DefaultHistorySize, h.maxSize)
}

func TestRunRecord_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, 90*time.Second, RunRecord{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}.Duration())
	assert.Equal(t, time.Duration(0), RunRecord{StartedAt: start}.Duration())
}
