package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandRule(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("daily count rule yields each day at the anchor time", func(t *testing.T) {
		instances, err := expandRule("FREQ=DAILY;COUNT=3", start, nil)
		require.NoError(t, err)
		require.Len(t, instances, 3)
		assert.Equal(t, start, instances[0])
		assert.Equal(t, start.AddDate(0, 0, 1), instances[1])
		assert.Equal(t, start.AddDate(0, 0, 2), instances[2])
	})

	t.Run("exception dates remove matching days", func(t *testing.T) {
		instances, err := expandRule("FREQ=DAILY;COUNT=3", start, []string{"2025-01-02"})
		require.NoError(t, err)
		require.Len(t, instances, 2)
		assert.Equal(t, start, instances[0])
		assert.Equal(t, start.AddDate(0, 0, 2), instances[1])
	})

	t.Run("unbounded rule caps at maxInstances", func(t *testing.T) {
		instances, err := expandRule("FREQ=DAILY", start, nil)
		require.NoError(t, err)
		assert.Len(t, instances, maxInstances)
	})

	t.Run("invalid rule errors", func(t *testing.T) {
		_, err := expandRule("FREQ=SOMETIMES", start, nil)
		assert.Error(t, err)
	})
}

func TestExpandEvent(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	t.Run("instances preserve duration", func(t *testing.T) {
		instances, err := expandEvent("FREQ=WEEKLY;COUNT=2", start, end, nil)
		require.NoError(t, err)
		require.Len(t, instances, 2)
		for _, inst := range instances {
			assert.Equal(t, 45*time.Minute, inst.end.Sub(inst.start))
		}
		assert.Equal(t, start.AddDate(0, 0, 7), instances[1].start)
	})
}

func TestDueWithinWindow(t *testing.T) {
	now := time.Date(2025, 1, 2, 9, 0, 15, 0, time.UTC)

	t.Run("instance fifteen seconds ago is due", func(t *testing.T) {
		instance := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
		assert.True(t, dueWithinWindow(now, instance, 30*time.Second))
	})

	t.Run("future instance is not due", func(t *testing.T) {
		assert.False(t, dueWithinWindow(now, now.Add(time.Second), 30*time.Second))
	})

	t.Run("instance exactly at the window edge is due", func(t *testing.T) {
		assert.True(t, dueWithinWindow(now, now.Add(-30*time.Second), 30*time.Second))
	})

	t.Run("instance past the window is not due", func(t *testing.T) {
		assert.False(t, dueWithinWindow(now, now.Add(-31*time.Second), 30*time.Second))
	})
}
