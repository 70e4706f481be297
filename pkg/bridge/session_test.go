package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounce(t *testing.T) {
	t.Run("two finals inside the window coalesce into one flush", func(t *testing.T) {
		s := newSession("s1", "c1", false)
		var flushes atomic.Int32
		var flushed atomic.Value

		flush := func() {
			flushes.Add(1)
			flushed.Store(s.takePending())
		}

		s.appendPending("Hello")
		s.resetDebounce(100*time.Millisecond, flush)

		time.Sleep(40 * time.Millisecond)

		s.appendPending("world.")
		s.resetDebounce(100*time.Millisecond, flush)

		// The first timer was cancelled; only the second fires, carrying
		// both fragments.
		require.Eventually(t, func() bool { return flushes.Load() == 1 },
			500*time.Millisecond, 10*time.Millisecond)
		assert.Equal(t, "Hello world.", flushed.Load())

		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, int32(1), flushes.Load())
	})

	t.Run("cancel prevents a pending flush", func(t *testing.T) {
		s := newSession("s1", "c1", false)
		var flushes atomic.Int32

		s.appendPending("text")
		s.resetDebounce(50*time.Millisecond, func() { flushes.Add(1) })
		s.cancelDebounce()

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int32(0), flushes.Load())
		assert.Equal(t, "text", s.takePending())
	})

	t.Run("takePending empties the buffer", func(t *testing.T) {
		s := newSession("s1", "c1", false)
		s.appendPending("one")
		s.appendPending("two")
		assert.Equal(t, "one two", s.takePending())
		assert.Equal(t, "", s.takePending())
	})
}

func TestDucking(t *testing.T) {
	t.Run("flag set during playback and cleared after estimate", func(t *testing.T) {
		s := newSession("s1", "c1", false)

		s.startDucking(60 * time.Millisecond)
		assert.True(t, s.ducking())

		require.Eventually(t, func() bool { return !s.ducking() },
			500*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("stopDucking clears immediately", func(t *testing.T) {
		s := newSession("s1", "c1", false)
		s.startDucking(time.Minute)
		s.stopDucking()
		assert.False(t, s.ducking())
	})
}

func TestEstimatePlayback(t *testing.T) {
	t.Run("short text floors at two seconds", func(t *testing.T) {
		assert.Equal(t, 2*time.Second, estimatePlayback("Hi."))
	})

	t.Run("longer text scales with word count", func(t *testing.T) {
		words := "one two three four five six seven eight nine ten eleven twelve"
		// 12 words / 3 per second + 1 s padding = 5 s.
		assert.Equal(t, 5*time.Second, estimatePlayback(words))
	})
}
