package audio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBuffer(t *testing.T) {
	t.Run("holds audio below minimum chunk size", func(t *testing.T) {
		b := NewChunkBuffer()
		b.Write(make([]byte, MinChunkBytes-1))
		assert.Nil(t, b.TakeChunk())
		assert.Equal(t, MinChunkBytes-1, b.Len())
	})

	t.Run("releases once minimum reached", func(t *testing.T) {
		b := NewChunkBuffer()
		b.Write(make([]byte, MinChunkBytes-1))
		b.Write(make([]byte, 1))

		chunk := b.TakeChunk()
		require.NotNil(t, chunk)
		assert.GreaterOrEqual(t, len(chunk), MinChunkBytes)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("overflow drops oldest bytes and keeps newest", func(t *testing.T) {
		b := NewChunkBuffer()
		old := bytes.Repeat([]byte{0x01}, MaxBufferBytes)
		fresh := bytes.Repeat([]byte{0x02}, 1000)

		b.Write(old)
		dropped := b.Write(fresh)

		assert.Equal(t, 1000, dropped)
		assert.Equal(t, MaxBufferBytes, b.Len())

		chunk := b.TakeChunk()
		require.NotNil(t, chunk)
		// Newest bytes always survive at the tail.
		assert.Equal(t, fresh, chunk[len(chunk)-1000:])
	})

	t.Run("buffer never exceeds the cap", func(t *testing.T) {
		b := NewChunkBuffer()
		for i := 0; i < 50; i++ {
			b.Write(make([]byte, 5000))
			assert.LessOrEqual(t, b.Len(), MaxBufferBytes)
			b.TakeChunk()
		}
	})

	t.Run("flush returns remainder regardless of size", func(t *testing.T) {
		b := NewChunkBuffer()
		b.Write([]byte{1, 2, 3})
		assert.Equal(t, []byte{1, 2, 3}, b.Flush())
		assert.Equal(t, 0, b.Len())
	})
}
