package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sine generates a 16-bit mono PCM sine wave.
func sine(freq float64, sampleRate, samples int, amplitude float64) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func toSamples(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// correlation computes the normalized cross-correlation of two equal-length
// signals.
func correlation(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

func TestMulawRoundTrip(t *testing.T) {
	t.Run("8kHz round trip preserves waveform within codec tolerance", func(t *testing.T) {
		original := sine(440, SampleRateTelephony, SampleRateTelephony/2, 8000) // 0.5 s

		mulaw := PCMToMulaw(original, SampleRateTelephony)
		restored := MulawToPCM(mulaw)
		// MulawToPCM upsamples to 16 kHz; bring it back for comparison.
		back := Resample(restored, SampleRatePCM, SampleRateTelephony)

		corr := correlation(toSamples(original), toSamples(back))
		assert.Greater(t, corr, 0.9, "waveform correlation after lossy round trip")
	})

	t.Run("mulaw output is one byte per sample", func(t *testing.T) {
		pcm := sine(300, SampleRateTelephony, 800, 5000)
		mulaw := PCMToMulaw(pcm, SampleRateTelephony)
		assert.Equal(t, len(pcm)/2, len(mulaw))
	})

	t.Run("16kHz input is downsampled before encoding", func(t *testing.T) {
		pcm := sine(300, SampleRatePCM, 1600, 5000) // 100 ms at 16 kHz
		mulaw := PCMToMulaw(pcm, SampleRatePCM)
		// 100 ms at 8 kHz mulaw = 800 bytes.
		assert.Equal(t, 800, len(mulaw))
	})
}

func TestResample(t *testing.T) {
	t.Run("doubles sample count upsampling 8k to 16k", func(t *testing.T) {
		pcm := sine(200, SampleRateTelephony, 400, 4000)
		up := Resample(pcm, SampleRateTelephony, SampleRatePCM)
		assert.Equal(t, len(pcm)*2, len(up))
	})

	t.Run("identity when rates match", func(t *testing.T) {
		pcm := sine(200, SampleRatePCM, 100, 4000)
		assert.Equal(t, pcm, Resample(pcm, SampleRatePCM, SampleRatePCM))
	})

	t.Run("odd trailing byte is discarded", func(t *testing.T) {
		pcm := append(sine(200, SampleRatePCM, 100, 4000), 0x7F)
		out := Resample(pcm, SampleRatePCM, SampleRateTelephony)
		assert.Equal(t, 100, len(out))
	})
}

func TestWAV(t *testing.T) {
	t.Run("wrap then unwrap round trips PCM and rate", func(t *testing.T) {
		pcm := sine(440, 24000, 2400, 9000)
		wav := WrapWAV(pcm, 24000)

		assert.True(t, IsWAV(wav))
		got, rate, err := UnwrapWAV(wav)
		require.NoError(t, err)
		assert.Equal(t, 24000, rate)
		assert.Equal(t, pcm, got)
	})

	t.Run("unwrap rejects non-WAV data", func(t *testing.T) {
		_, _, err := UnwrapWAV([]byte{0xFF, 0xFB, 0x00, 0x00})
		assert.Error(t, err)
	})
}

func TestFormatSniffing(t *testing.T) {
	t.Run("detects MP3 by ID3 tag and frame sync", func(t *testing.T) {
		assert.True(t, IsMP3([]byte("ID3\x04\x00")))
		assert.True(t, IsMP3([]byte{0xFF, 0xFB, 0x90, 0x00}))
		assert.False(t, IsMP3([]byte("RIFFxxxx")))
	})

	t.Run("detects WAV by RIFF magic", func(t *testing.T) {
		assert.True(t, IsWAV([]byte("RIFFxxxxWAVE")))
		assert.False(t, IsWAV([]byte("ID3")))
	})
}
