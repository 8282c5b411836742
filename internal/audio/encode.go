package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"stockpilot/internal/ports"
)

const bytesPerSample = 2

// PCM16FromFloat32LE converts raw 32-bit float little-endian samples in
// [-1, 1] to signed 16-bit PCM by multiplying by 32768 and truncating.
// A trailing partial sample is dropped.
func PCM16FromFloat32LE(raw []byte) []byte {
	samples := len(raw) / 4
	out := make([]byte, samples*bytesPerSample)
	for i := 0; i < samples; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		f := math.Float32frombits(bits)
		v := int32(f * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(int16(v)))
	}
	return out
}

// EncodeFrame packages a 16-bit PCM frame for transport: base64 payload
// plus its MIME/format tag.
func EncodeFrame(pcm []byte, sampleRate int) ports.AudioFrame {
	return ports.AudioFrame{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}

// Duration derives the implicit play time of a 16-bit PCM buffer from
// its sample count and rate.
func Duration(pcmLen int, sampleRate int, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 || pcmLen <= 0 {
		return 0
	}
	samples := pcmLen / (bytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
