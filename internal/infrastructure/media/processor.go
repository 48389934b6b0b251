package media

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	"github.com/nfnt/resize"
)

// Processor normalizes camera images into small JPEGs: longer side capped,
// lossy re-encode at a fixed quality. It exists to keep durable-store
// transfers and the inline-fallback budget tractable. It never fails
// outward: PDFs, unknown formats and any decode or encode error all return
// the input unchanged.
type Processor struct {
	maxEdge int
	quality int
	logger  *slog.Logger
}

type Config struct {
	// MaxEdge caps the longer side in pixels. Practical range 1280–2000.
	MaxEdge int
	// Quality is the JPEG quality target, practical range 60–80.
	Quality int
}

func DefaultConfig() Config {
	return Config{MaxEdge: 1600, Quality: 70}
}

func New(cfg Config, logger *slog.Logger) *Processor {
	def := DefaultConfig()
	if cfg.MaxEdge <= 0 {
		cfg.MaxEdge = def.MaxEdge
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{maxEdge: cfg.MaxEdge, quality: cfg.Quality, logger: logger}
}

func (p *Processor) Process(_ context.Context, data []byte, mimeType string) ([]byte, string) {
	if !strings.HasPrefix(mimeType, "image/") {
		return data, mimeType
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		p.logger.Warn("image decode failed, passing input through", "mime_type", mimeType, "error", err)
		return data, mimeType
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > p.maxEdge || height > p.maxEdge {
		if width >= height {
			img = resize.Resize(uint(p.maxEdge), 0, img, resize.Lanczos3)
		} else {
			img = resize.Resize(0, uint(p.maxEdge), img, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		p.logger.Warn("jpeg encode failed, passing input through", "format", format, "error", err)
		return data, mimeType
	}

	p.logger.Debug("image normalized",
		"format", format,
		"in_bytes", len(data),
		"out_bytes", buf.Len(),
	)
	return buf.Bytes(), "image/jpeg"
}
