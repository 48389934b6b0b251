package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestProcessDownscalesLargeImage(t *testing.T) {
	p := New(Config{MaxEdge: 100, Quality: 70}, testLogger())
	data := encodePNG(t, 400, 200)

	out, mimeType := p.Process(context.Background(), data, "image/png")
	if mimeType != "image/jpeg" {
		t.Fatalf("mime = %s, want image/jpeg", mimeType)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 100 {
		t.Fatalf("width = %d, want 100", bounds.Dx())
	}
	if bounds.Dy() != 50 {
		t.Fatalf("height = %d, want 50 (aspect preserved)", bounds.Dy())
	}
}

func TestProcessPortraitUsesHeightAsLongEdge(t *testing.T) {
	p := New(Config{MaxEdge: 100, Quality: 70}, testLogger())
	data := encodePNG(t, 200, 400)

	out, _ := p.Process(context.Background(), data, "image/png")
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dy() != 100 || img.Bounds().Dx() != 50 {
		t.Fatalf("bounds = %v, want 50x100", img.Bounds())
	}
}

func TestProcessSmallImageIsNotUpscaled(t *testing.T) {
	p := New(Config{MaxEdge: 1600, Quality: 70}, testLogger())
	data := encodePNG(t, 80, 60)

	out, mimeType := p.Process(context.Background(), data, "image/png")
	if mimeType != "image/jpeg" {
		t.Fatalf("mime = %s, want image/jpeg", mimeType)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 60 {
		t.Fatalf("small image resized to %v", img.Bounds())
	}
}

func TestProcessNonImagePassthrough(t *testing.T) {
	p := New(DefaultConfig(), testLogger())
	data := []byte("%PDF-1.7 ...")

	out, mimeType := p.Process(context.Background(), data, "application/pdf")
	if !bytes.Equal(out, data) || mimeType != "application/pdf" {
		t.Fatalf("pdf input must pass through untouched")
	}
}

func TestProcessCorruptImagePassthrough(t *testing.T) {
	p := New(DefaultConfig(), testLogger())
	data := []byte("not an image at all")

	out, mimeType := p.Process(context.Background(), data, "image/png")
	if !bytes.Equal(out, data) || mimeType != "image/png" {
		t.Fatalf("undecodable image must pass through untouched")
	}
}
