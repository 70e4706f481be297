package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeToPCM sniffs a TTS payload (WAV or MP3) and returns 16-bit mono PCM
// plus its sample rate. Buffered Cartesia output is WAV-wrapped PCM; the
// buffered ElevenLabs fallback emits MP3.
func DecodeToPCM(data []byte) (pcm []byte, sampleRate int, err error) {
	switch {
	case IsWAV(data):
		return UnwrapWAV(data)
	case IsMP3(data):
		return decodeMP3(data)
	default:
		return nil, 0, fmt.Errorf("unrecognized audio format")
	}
}

// decodeMP3 decodes to PCM and downmixes to mono (the decoder always emits
// 16-bit stereo).
func decodeMP3(data []byte) ([]byte, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode failed: %w", err)
	}

	stereo, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 read failed: %w", err)
	}
	if len(stereo)%4 != 0 {
		stereo = stereo[:len(stereo)-len(stereo)%4]
	}

	mono := make([]byte, len(stereo)/2)
	for i := 0; i < len(stereo); i += 4 {
		l := int16(binary.LittleEndian.Uint16(stereo[i:]))
		r := int16(binary.LittleEndian.Uint16(stereo[i+2:]))
		binary.LittleEndian.PutUint16(mono[i/2:], uint16((int32(l)+int32(r))/2))
	}
	return mono, dec.SampleRate(), nil
}
