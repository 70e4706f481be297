package audio

import (
	"encoding/binary"

	"github.com/zaf/g711"
)

// MulawToPCM converts carrier mulaw 8 kHz to linear PCM 16-bit 16 kHz mono.
func MulawToPCM(mulaw []byte) []byte {
	pcm8k := g711.DecodeUlaw(mulaw)
	return Resample(pcm8k, SampleRateTelephony, SampleRatePCM)
}

// PCMToMulaw converts linear PCM 16-bit at inputRate to mulaw 8 kHz.
func PCMToMulaw(pcm []byte, inputRate int) []byte {
	pcm8k := Resample(pcm, inputRate, SampleRateTelephony)
	return g711.EncodeUlaw(pcm8k)
}

// Resample converts 16-bit little-endian mono PCM between sample rates by
// linear interpolation. Quality is adequate for telephony; the carrier leg
// is 8-bit mulaw anyway.
func Resample(pcm []byte, inputRate, outputRate int) []byte {
	if inputRate == outputRate || len(pcm) < 2 {
		return pcm
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	ratio := float64(outputRate) / float64(inputRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]byte, outLen*2)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		frac := srcPos - float64(idx0)
		v := float64(samples[idx0])*(1.0-frac) + float64(samples[idx1])*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
