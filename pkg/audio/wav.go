package audio

import (
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// WrapWAV prepends a 44-byte RIFF header to raw 16-bit mono PCM.
func WrapWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	out := make([]byte, wavHeaderSize+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM subchunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// IsWAV sniffs the RIFF magic.
func IsWAV(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "RIFF"
}

// IsMP3 sniffs an ID3 tag or an MPEG frame sync.
func IsMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// UnwrapWAV strips the RIFF header and returns the PCM payload and sample
// rate. Only 16-bit PCM is supported, which is all our TTS providers emit.
func UnwrapWAV(data []byte) (pcm []byte, sampleRate int, err error) {
	if !IsWAV(data) || len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("not a WAV payload")
	}
	format := binary.LittleEndian.Uint16(data[20:22])
	if format != 1 {
		return nil, 0, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
	}
	bits := binary.LittleEndian.Uint16(data[34:36])
	if bits != 16 {
		return nil, 0, fmt.Errorf("unsupported WAV bit depth %d", bits)
	}
	sampleRate = int(binary.LittleEndian.Uint32(data[24:28]))

	pcm = data[wavHeaderSize:]
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return pcm, sampleRate, nil
}
