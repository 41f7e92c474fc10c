package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// Payload is the self-describing blob embedded in a session's QR image.
// Scanning clients submit the SessionID back to mark attendance.
type Payload struct {
	SessionID     string    `json:"sessionId"`
	ClassID       string    `json:"classId"`
	LectureTiming string    `json:"lectureTiming"`
	Timestamp     time.Time `json:"timestamp"`
}

// Marshal renders the payload as the JSON blob encoded into the image.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Encoder turns a payload blob into a transmissible representation.
// The session lifecycle does not depend on the encoding scheme.
type Encoder interface {
	Encode(payload []byte) (string, error)
}

// PNGEncoder renders payloads as base64 PNG data URLs, sized in pixels.
type PNGEncoder struct {
	Size int
}

// NewPNGEncoder constructs a PNG encoder with the given image size.
func NewPNGEncoder(size int) *PNGEncoder {
	if size <= 0 {
		size = 256
	}
	return &PNGEncoder{Size: size}
}

// Encode produces a data URL suitable for direct rendering in an <img> tag.
func (e *PNGEncoder) Encode(payload []byte) (string, error) {
	png, err := qrcode.Encode(string(payload), qrcode.Medium, e.Size)
	if err != nil {
		return "", fmt.Errorf("encode qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
