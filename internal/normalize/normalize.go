// Package normalize turns user screenshots into upload-ready JPEG payloads that
// respect a maximum side length and an encoded-size ceiling. Tall scrolling
// screenshots are split into vertical chunks first.
package normalize

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"math"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"car-report/internal/apperr"
	"car-report/internal/models"

	"github.com/disintegration/imaging"
)

const (
	initialQuality = 85
	qualityStep    = 10
	minQuality     = 30

	// base64 data URIs are ~4/3 the size of the bytes they carry, plus header.
	dataURLInflation = 1.37

	mimeJPEG      = "image/jpeg"
	dataURLPrefix = "data:" + mimeJPEG + ";base64,"
)

// Options bounds the shape and size of every emitted payload.
type Options struct {
	MaxSide          int
	MaxBytes         int
	SplitAspectRatio float64
	ChunkHeight      int
	Concurrency      int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxSide:          2048,
		MaxBytes:         3 << 20,
		SplitAspectRatio: 3,
		ChunkHeight:      2048,
		Concurrency:      4,
	}
}

// Validate checks that the options can produce payloads within MaxSide.
func (o Options) Validate() error {
	switch {
	case o.MaxSide <= 0:
		return apperr.Config(fmt.Sprintf("max side must be positive, got %d", o.MaxSide), nil)
	case o.MaxBytes <= 0:
		return apperr.Config(fmt.Sprintf("max bytes must be positive, got %d", o.MaxBytes), nil)
	case o.SplitAspectRatio <= 0:
		return apperr.Config(fmt.Sprintf("split aspect ratio must be positive, got %g", o.SplitAspectRatio), nil)
	case o.ChunkHeight <= 0:
		return apperr.Config(fmt.Sprintf("chunk height must be positive, got %d", o.ChunkHeight), nil)
	case o.ChunkHeight > o.MaxSide:
		return apperr.Config(fmt.Sprintf("chunk height %d exceeds max side %d", o.ChunkHeight, o.MaxSide), nil)
	}
	return nil
}

// Normalizer is stateless after construction and safe for concurrent use.
type Normalizer struct {
	opts Options
}

func New(opts Options) (*Normalizer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{opts: opts}, nil
}

// Options returns the effective options.
func (n *Normalizer) Options() Options {
	return n.opts
}

// NormalizeBytes decodes raw file content and normalizes it.
func (n *Normalizer) NormalizeBytes(data []byte, label string) ([]models.ImagePayload, error) {
	if len(data) == 0 {
		return nil, apperr.Decode(fmt.Sprintf("%s: empty file", label), nil)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Decode(fmt.Sprintf("%s: failed to decode image", label), err)
	}
	return n.Normalize(img, label)
}

// Normalize emits one payload for a regular image, or one payload per
// vertical chunk (top to bottom) for a tall scan.
func (n *Normalizer) Normalize(img image.Image, label string) ([]models.ImagePayload, error) {
	if img == nil {
		return nil, apperr.Decode(fmt.Sprintf("%s: no image", label), nil)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, apperr.Decode(fmt.Sprintf("%s: invalid dimensions %dx%d", label, width, height), nil)
	}
	original := models.Dimensions{Width: width, Height: height}

	if float64(height) > float64(width)*n.opts.SplitAspectRatio {
		if bands := splitBands(height, n.opts.ChunkHeight); len(bands) > 1 {
			return n.normalizeTall(img, label, original, bands)
		}
	}

	payload, err := n.normalizeSingle(img, label, original)
	if err != nil {
		return nil, err
	}
	return []models.ImagePayload{payload}, nil
}

func (n *Normalizer) normalizeSingle(img image.Image, label string, original models.Dimensions) (models.ImagePayload, error) {
	out := fitWithin(original, n.opts.MaxSide)
	if out != original {
		img = imaging.Resize(img, out.Width, out.Height, imaging.Lanczos)
	}
	return n.encodePayload(img, label, original, out, models.Band{Top: 0, Bottom: original.Height})
}

func (n *Normalizer) normalizeTall(img image.Image, label string, original models.Dimensions, bands []models.Band) ([]models.ImagePayload, error) {
	bounds := img.Bounds()

	// One factor for every chunk keeps the output widths identical.
	scale := 1.0
	if original.Width > n.opts.MaxSide {
		scale = float64(n.opts.MaxSide) / float64(original.Width)
	}

	payloads := make([]models.ImagePayload, 0, len(bands))
	for i, band := range bands {
		rect := image.Rect(bounds.Min.X, bounds.Min.Y+band.Top, bounds.Max.X, bounds.Min.Y+band.Bottom)
		var chunk image.Image = imaging.Crop(img, rect)

		out := models.Dimensions{Width: original.Width, Height: band.Bottom - band.Top}
		if scale < 1 {
			out = models.Dimensions{
				Width:  n.opts.MaxSide,
				Height: max(1, int(math.Round(float64(out.Height)*scale))),
			}
			chunk = imaging.Resize(chunk, out.Width, out.Height, imaging.Lanczos)
		}

		partLabel := fmt.Sprintf("%s (part %d/%d)", label, i+1, len(bands))
		payload, err := n.encodePayload(chunk, partLabel, original, out, band)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

func (n *Normalizer) encodePayload(img image.Image, label string, original, out models.Dimensions, band models.Band) (models.ImagePayload, error) {
	enc, err := encodeWithBackoff(img, n.opts.MaxBytes)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("%s: failed to encode image: %w", label, err)
	}
	return models.ImagePayload{
		Label:    label,
		DataURL:  enc.dataURL,
		MIMEType: mimeJPEG,
		Bytes:    enc.data,
		Original: original,
		Output:   out,
		Quality:  enc.quality,
		Band:     band,
	}, nil
}

// splitBands cuts [0, height) into ceil(height/chunkHeight) near-equal bands.
func splitBands(height, chunkHeight int) []models.Band {
	chunks := ceilDiv(height, chunkHeight)
	if chunks <= 1 {
		return []models.Band{{Top: 0, Bottom: height}}
	}
	step := ceilDiv(height, chunks)

	bands := make([]models.Band, 0, chunks)
	for i := 0; i < chunks; i++ {
		top := i * step
		if top >= height {
			break
		}
		bands = append(bands, models.Band{Top: top, Bottom: min((i+1)*step, height)})
	}
	return bands
}

// fitWithin scales d uniformly so neither side exceeds maxSide. Dimensions
// already within bounds are returned unchanged.
func fitWithin(d models.Dimensions, maxSide int) models.Dimensions {
	if d.Width <= maxSide && d.Height <= maxSide {
		return d
	}
	scale := math.Min(float64(maxSide)/float64(d.Width), float64(maxSide)/float64(d.Height))
	return models.Dimensions{
		Width:  clamp(int(math.Round(float64(d.Width)*scale)), 1, maxSide),
		Height: clamp(int(math.Round(float64(d.Height)*scale)), 1, maxSide),
	}
}

type encoded struct {
	data     []byte
	dataURL  string
	quality  int
	attempts int
}

// encodeWithBackoff encodes img as JPEG, lowering quality until the data URI
// fits maxBytes*dataURLInflation or the quality floor is reached. The floor
// result is accepted regardless of size.
func encodeWithBackoff(img image.Image, maxBytes int) (encoded, error) {
	limit := float64(maxBytes) * dataURLInflation
	quality := initialQuality

	var buf bytes.Buffer
	for attempt := 1; ; attempt++ {
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return encoded{}, err
		}
		dataURL := dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())

		if float64(len(dataURL)) <= limit || quality <= minQuality {
			return encoded{
				data:     bytes.Clone(buf.Bytes()),
				dataURL:  dataURL,
				quality:  quality,
				attempts: attempt,
			}, nil
		}
		quality = max(quality-qualityStep, minQuality)
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
