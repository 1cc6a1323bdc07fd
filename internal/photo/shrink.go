// Package photo gates pickup photos before upload: payloads must decode
// as images, and oversized ones are shrunk to a byte budget.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"pickupdesk/internal/metrics"
)

// ErrDecode is returned when a payload is not a decodable image. The
// caller must not attempt an upload after seeing it.
var ErrDecode = errors.New("not a decodable image")

const (
	// DefaultMaxBytes is the hard cap for direct upload; anything
	// larger goes through Shrink first.
	DefaultMaxBytes = 2 << 20
	// DefaultMaxDim bounds the longer side of a shrunk image.
	DefaultMaxDim = 1200

	startQuality = 90
	minQuality   = 30
	qualityStep  = 10
)

// Shrinker re-encodes oversized images under a byte budget.
type Shrinker struct {
	MaxBytes int64
	MaxDim   int
}

// NewShrinker returns a shrinker with the default budget (2 MiB,
// 1200 px long side).
func NewShrinker() *Shrinker {
	return &Shrinker{MaxBytes: DefaultMaxBytes, MaxDim: DefaultMaxDim}
}

// Prepare validates a payload for upload. Payloads within the budget
// pass through unchanged once they prove decodable; larger ones are
// shrunk.
func (s *Shrinker) Prepare(data []byte) ([]byte, error) {
	if int64(len(data)) <= s.MaxBytes {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return data, nil
	}
	return s.Shrink(data)
}

// Shrink decodes the payload, scales it so the longer side is at most
// MaxDim (aspect preserved, never upscaled), and re-encodes as JPEG at
// decreasing quality until the result fits the budget or quality floors
// at 30. The floor result is still returned; quality loss is
// irreversible either way.
func (s *Shrinker) Shrink(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	metrics.PhotoShrinks.Inc()

	bounds := src.Bounds()
	if bounds.Dx() > s.MaxDim || bounds.Dy() > s.MaxDim {
		src = imaging.Fit(src, s.MaxDim, s.MaxDim, imaging.Lanczos)
	}

	var best []byte
	for q := startQuality; q >= minQuality; q -= qualityStep {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("encode at quality %d: %w", q, err)
		}
		best = buf.Bytes()
		if int64(len(best)) <= s.MaxBytes {
			return best, nil
		}
	}
	return best, nil
}
