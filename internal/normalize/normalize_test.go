package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"strings"
	"testing"

	"car-report/internal/apperr"
	"car-report/internal/models"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		MaxSide:          200,
		MaxBytes:         1 << 20,
		SplitAspectRatio: 3,
		ChunkHeight:      100,
		Concurrency:      2,
	}
}

func newTestNormalizer(t *testing.T, opts Options) *Normalizer {
	t.Helper()
	n, err := New(opts)
	require.NoError(t, err)
	return n
}

func gradientImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func noiseImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func decodedSize(t *testing.T, p models.ImagePayload) models.Dimensions {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(p.Bytes))
	require.NoError(t, err)
	return models.Dimensions{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "zero max side", mutate: func(o *Options) { o.MaxSide = 0 }, wantErr: true},
		{name: "negative max bytes", mutate: func(o *Options) { o.MaxBytes = -1 }, wantErr: true},
		{name: "zero ratio", mutate: func(o *Options) { o.SplitAspectRatio = 0 }, wantErr: true},
		{name: "chunk taller than max side", mutate: func(o *Options) { o.ChunkHeight = o.MaxSide + 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := New(opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.TypeConfig))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNormalizeSmallImageUnchanged(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	payloads, err := n.Normalize(gradientImage(120, 80), "scan.png")
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	p := payloads[0]
	assert.Equal(t, "scan.png", p.Label)
	assert.Equal(t, models.Dimensions{Width: 120, Height: 80}, p.Original)
	assert.Equal(t, p.Original, p.Output)
	assert.Equal(t, p.Output, decodedSize(t, p))
	assert.Equal(t, "image/jpeg", p.MIMEType)
	assert.True(t, strings.HasPrefix(p.DataURL, "data:image/jpeg;base64,"))
	assert.Equal(t, initialQuality, p.Quality)
	assert.Equal(t, models.Band{Top: 0, Bottom: 80}, p.Band)
}

func TestNormalizeExactlyMaxSideUnchanged(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	payloads, err := n.Normalize(gradientImage(200, 200), "square.png")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, models.Dimensions{Width: 200, Height: 200}, payloads[0].Output)
}

func TestNormalizeScalesPreservingAspectRatio(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantOutput models.Dimensions
	}{
		{name: "wide", w: 500, h: 300, wantOutput: models.Dimensions{Width: 200, Height: 120}},
		{name: "wide odd", w: 333, h: 101, wantOutput: models.Dimensions{Width: 200, Height: 61}},
		{name: "tall below split ratio", w: 100, h: 250, wantOutput: models.Dimensions{Width: 80, Height: 200}},
	}

	n := newTestNormalizer(t, testOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payloads, err := n.Normalize(gradientImage(tt.w, tt.h), "photo.jpg")
			require.NoError(t, err)
			require.Len(t, payloads, 1)

			out := payloads[0].Output
			assert.Equal(t, tt.wantOutput, out)
			assert.LessOrEqual(t, max(out.Width, out.Height), 200)
			assert.Equal(t, out, decodedSize(t, payloads[0]))

			// aspect ratio within one pixel of rounding
			expectedH := float64(tt.h) * float64(out.Width) / float64(tt.w)
			assert.LessOrEqual(t, math.Abs(float64(out.Height)-expectedH), 1.0)
		})
	}
}

func TestNormalizeTallScanSplitsIntoChunks(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	payloads, err := n.Normalize(gradientImage(100, 1050), "report.png")
	require.NoError(t, err)
	require.Len(t, payloads, 11) // ceil(1050/100)

	assert.Equal(t, 0, payloads[0].Band.Top)
	assert.Equal(t, 1050, payloads[len(payloads)-1].Band.Bottom)
	for i, p := range payloads {
		assert.Equal(t, fmt.Sprintf("report.png (part %d/11)", i+1), p.Label)
		assert.Equal(t, models.Dimensions{Width: 100, Height: 1050}, p.Original)
		assert.Equal(t, 100, p.Output.Width)
		assert.Equal(t, p.Band.Bottom-p.Band.Top, p.Output.Height)
		assert.LessOrEqual(t, p.Output.Height, 100)
		if i > 0 {
			assert.Equal(t, payloads[i-1].Band.Bottom, p.Band.Top, "gap or overlap before chunk %d", i)
		}
	}
}

func TestNormalizeTallScanScalesByOriginalWidth(t *testing.T) {
	opts := testOptions()
	opts.SplitAspectRatio = 2
	n := newTestNormalizer(t, opts)

	payloads, err := n.Normalize(gradientImage(300, 1000), "wide-scroll.png")
	require.NoError(t, err)
	require.Len(t, payloads, 10)

	for _, p := range payloads {
		assert.Equal(t, 200, p.Output.Width)
		assert.Equal(t, 67, p.Output.Height) // round(100 * 200/300)
		assert.Equal(t, p.Output, decodedSize(t, p))
	}
}

func TestNormalizeSingleChunkTallScanUsesNormalPath(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	// height > width*3 but fits in one chunk
	payloads, err := n.Normalize(gradientImage(20, 90), "strip.png")
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	assert.Equal(t, "strip.png", payloads[0].Label)
	assert.Equal(t, payloads[0].Original, payloads[0].Output)
	assert.Equal(t, models.Band{Top: 0, Bottom: 90}, payloads[0].Band)
}

func TestSplitBandsCoverHeight(t *testing.T) {
	for _, tc := range []struct{ height, chunk int }{
		{1050, 100}, {1000, 100}, {101, 100}, {7, 2}, {12, 3}, {4097, 2048},
	} {
		bands := splitBands(tc.height, tc.chunk)
		assert.Len(t, bands, ceilDiv(tc.height, tc.chunk), "height=%d chunk=%d", tc.height, tc.chunk)

		next := 0
		for _, b := range bands {
			assert.Equal(t, next, b.Top)
			assert.Greater(t, b.Bottom, b.Top)
			next = b.Bottom
		}
		assert.Equal(t, tc.height, next)
	}
}

func TestEncodeWithBackoffStopsAtFloor(t *testing.T) {
	img := noiseImage(256, 256)

	enc, err := encodeWithBackoff(img, 1)
	require.NoError(t, err)
	assert.Equal(t, minQuality, enc.quality)
	assert.Equal(t, 7, enc.attempts) // 85,75,65,55,45,35,30
	assert.Greater(t, float64(len(enc.dataURL)), 1*dataURLInflation)
}

func TestEncodeWithBackoffLowersQualityUntilFits(t *testing.T) {
	img := noiseImage(256, 256)

	high, err := encodeWithBackoff(img, 1<<30)
	require.NoError(t, err)
	require.Equal(t, initialQuality, high.quality)
	require.Equal(t, 1, high.attempts)

	// Budget slightly below the q=85 output forces at least one step down.
	budget := int(float64(len(high.dataURL))/dataURLInflation) - 1
	lower, err := encodeWithBackoff(img, budget)
	require.NoError(t, err)
	assert.Less(t, lower.quality, initialQuality)
	assert.GreaterOrEqual(t, lower.quality, minQuality)
	assert.LessOrEqual(t, lower.attempts, 7)
	assert.Less(t, len(lower.data), len(high.data))
}

func TestNormalizeRejectsInvalidInput(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	_, err := n.Normalize(image.NewNRGBA(image.Rect(0, 0, 0, 10)), "empty.png")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TypeDecode))

	_, err = n.NormalizeBytes(nil, "zero.jpg")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TypeDecode))

	_, err = n.NormalizeBytes([]byte("definitely not an image"), "garbage.jpg")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TypeDecode))
}

func TestNormalizeBytesDecodesPNG(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradientImage(400, 100)))

	payloads, err := n.NormalizeBytes(buf.Bytes(), "upload.png")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, models.Dimensions{Width: 200, Height: 50}, payloads[0].Output)
}

func TestNormalizeBatchKeepsOrderAndIsolatesErrors(t *testing.T) {
	n := newTestNormalizer(t, testOptions())

	var good bytes.Buffer
	require.NoError(t, png.Encode(&good, gradientImage(50, 400)))

	files := []SourceFile{
		{Label: "tall.png", Data: good.Bytes()},
		{Label: "broken.jpg", Data: []byte{0xFF, 0xD8, 0x00}},
		{Label: "empty.png", Data: nil},
	}
	results := n.NormalizeBatch(context.Background(), files)
	require.Len(t, results, 3)

	assert.Equal(t, "tall.png", results[0].Label)
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Payloads, 4)

	assert.Equal(t, "broken.jpg", results[1].Label)
	assert.Error(t, results[1].Err)
	assert.Error(t, results[2].Err)

	flat := Flatten(results)
	require.Len(t, flat, 4)
	for i, p := range flat {
		assert.Equal(t, fmt.Sprintf("tall.png (part %d/4)", i+1), p.Label)
	}
}

func TestNormalizeBatchCancelledContext(t *testing.T) {
	n := newTestNormalizer(t, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := n.NormalizeBatch(ctx, []SourceFile{{Label: "a.png", Data: []byte{1}}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}
