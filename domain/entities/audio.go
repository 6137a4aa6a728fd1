package entities

// AudioBlob is the wire representation of one audio chunk: a base64-encoded
// 16-bit little-endian PCM payload tagged with a MIME descriptor carrying
// the encoding and sample rate, e.g. "audio/pcm;rate=16000".
type AudioBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}
