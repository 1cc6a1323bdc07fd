package photo

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
)

// noisePNG encodes a w x h random image; noise defeats compression so
// the payload lands well over any small byte budget.
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestShrinkOversizedImage(t *testing.T) {
	data := noisePNG(t, 2400, 1600)
	s := NewShrinker()
	if int64(len(data)) <= s.MaxBytes {
		t.Fatalf("fixture too small to exercise shrink: %d bytes", len(data))
	}

	out, err := s.Prepare(data)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if int64(len(out)) > s.MaxBytes {
		t.Errorf("output %d bytes exceeds budget %d", len(out), s.MaxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %q, want jpeg regardless of input", format)
	}
	if cfg.Width != 1200 || cfg.Height != 800 {
		t.Errorf("dimensions = %dx%d, want 1200x800 (aspect preserved)", cfg.Width, cfg.Height)
	}
}

func TestShrinkQualityFloorStillReturns(t *testing.T) {
	data := noisePNG(t, 1600, 1600)
	s := &Shrinker{MaxBytes: 1000, MaxDim: 1200}

	out, err := s.Shrink(data)
	if err != nil {
		t.Fatalf("floor result must be best-effort, not an error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("floor result is empty")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width > 1200 || cfg.Height > 1200 {
		t.Errorf("dimensions %dx%d exceed the 1200px bound", cfg.Width, cfg.Height)
	}
}

func TestPrepareSmallImagePassesThrough(t *testing.T) {
	small := imaging.New(10, 10, color.RGBA{200, 100, 50, 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	s := NewShrinker()
	out, err := s.Prepare(buf.Bytes())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !bytes.Equal(out, buf.Bytes()) {
		t.Error("payload within budget must pass through unchanged")
	}
}

func TestPrepareRejectsNonImage(t *testing.T) {
	s := NewShrinker()
	if _, err := s.Prepare([]byte("definitely not an image")); !errors.Is(err, ErrDecode) {
		t.Fatalf("want ErrDecode, got %v", err)
	}
}

func TestShrinkRejectsNonImage(t *testing.T) {
	s := NewShrinker()
	junk := bytes.Repeat([]byte{0xde, 0xad}, 2<<20)
	if _, err := s.Shrink(junk); !errors.Is(err, ErrDecode) {
		t.Fatalf("want ErrDecode, got %v", err)
	}
}

func TestShrinkNeverUpscales(t *testing.T) {
	data := noisePNG(t, 900, 600)
	s := &Shrinker{MaxBytes: 1, MaxDim: 1200}

	out, err := s.Shrink(data)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 900 || cfg.Height != 600 {
		t.Errorf("dimensions = %dx%d, want original 900x600", cfg.Width, cfg.Height)
	}
}
