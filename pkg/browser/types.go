package browser

import (
	"encoding/base64"
	"fmt"
	"time"
)

// FrameFormat identifies the image format for a frame payload.
type FrameFormat string

const (
	FrameFormatPNG  FrameFormat = "png"
	FrameFormatJPEG FrameFormat = "jpeg"
	FrameFormatWebP FrameFormat = "webp"
)

// Frame is a single visual frame captured from a device.
type Frame struct {
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Format    FrameFormat `json:"format"`
	Data      []byte      `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SnapshotBytes extracts the image payload from a screenshot result. Adapters
// may return raw bytes, a Frame, or a base64 string as WebDriver does.
func SnapshotBytes(result any) ([]byte, error) {
	switch v := result.(type) {
	case []byte:
		if v == nil {
			return nil, ErrEmptySnapshot
		}
		return v, nil
	case *Frame:
		if v == nil || v.Data == nil {
			return nil, ErrEmptySnapshot
		}
		return v.Data, nil
	case Frame:
		if v.Data == nil {
			return nil, ErrEmptySnapshot
		}
		return v.Data, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decoding screenshot: %w", err)
		}
		return data, nil
	case nil:
		return nil, ErrEmptySnapshot
	default:
		return nil, fmt.Errorf("unsupported screenshot result %T", result)
	}
}
