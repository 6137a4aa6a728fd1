package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wicaksana/swara/domain/entities"
)

const (
	// InputSampleRate is the fixed capture rate sent to the endpoint.
	InputSampleRate = 16000
	// OutputSampleRate is the fixed rate of synthesized audio received
	// from the endpoint.
	OutputSampleRate = 24000

	inputMIMEType = "audio/pcm;rate=16000"
)

// DecodeError reports a malformed inbound audio payload. A chunk failing
// to decode is dropped; it never aborts the session.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode audio payload: " + e.Reason
}

// Buffer is a playable block of mono samples at OutputSampleRate.
type Buffer struct {
	Samples []float32
}

// Duration returns the playback length of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	return float64(len(b.Samples)) / OutputSampleRate
}

// EncodeFrame converts one captured frame of linear samples into the wire
// blob format: samples are quantized to 16-bit signed integers, clamped to
// the representable range, serialized little-endian and base64-encoded.
// Deterministic and order-preserving.
func EncodeFrame(samples []float32) entities.AudioBlob {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(math.Round(float64(s) * 32768))
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return entities.AudioBlob{
		MIMEType: inputMIMEType,
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}
}

// DecodePayload converts a base64-encoded 16-bit signed little-endian PCM
// payload into a playable buffer, rescaling integers to [-1, 1). It fails
// with a DecodeError if the payload is not valid base64 or its length is
// not a whole number of 16-bit samples.
func DecodePayload(data string) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("payload length %d is not a whole number of 16-bit samples", len(raw))}
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return &Buffer{Samples: samples}, nil
}
