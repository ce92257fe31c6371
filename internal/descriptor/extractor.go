// Package descriptor maps keyframe candidates to fixed-length vectors and
// keeps those vectors in typed, persistable batches.
package descriptor

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Extractor turns an image into a fixed-length descriptor. Implementations
// must be deterministic for a fixed model and always return Dim() values.
// Embed may be called from several goroutines at once.
type Extractor interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Dim() int
	Close() error
}

const colorBins = 16

// ColorExtractor is a model-free extractor built from per-channel colour
// histograms plus global luminance statistics. It is used when no embedding
// model is configured.
type ColorExtractor struct {
	size int
}

// NewColorExtractor creates a colour-statistics extractor. Images are
// downscaled to at most size pixels on the long side first; 0 disables it.
func NewColorExtractor(size int) *ColorExtractor {
	return &ColorExtractor{size: size}
}

// Dim is 3 colour histograms plus colorfulness, contrast and brightness
func (c *ColorExtractor) Dim() int {
	return 3*colorBins + 3
}

// Embed computes the descriptor
func (c *ColorExtractor) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty raster", ErrUnsupportedImage)
	}

	if c.size > 0 {
		b := img.Bounds()
		if b.Dx() > c.size || b.Dy() > c.size {
			img = imaging.Fit(img, c.size, c.size, imaging.Box)
		}
	}
	src := imaging.Clone(img)

	vec := make([]float32, c.Dim())
	var lumSum, lumSqSum, rSum, gSum, bSum float64
	pixels := float64(src.Rect.Dx() * src.Rect.Dy())

	for i := 0; i+3 < len(src.Pix); i += 4 {
		r, g, b := src.Pix[i], src.Pix[i+1], src.Pix[i+2]
		vec[int(r)*colorBins/256]++
		vec[colorBins+int(g)*colorBins/256]++
		vec[2*colorBins+int(b)*colorBins/256]++

		lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
		lumSum += lum
		lumSqSum += lum * lum
		rSum += float64(r)
		gSum += float64(g)
		bSum += float64(b)
	}

	for i := 0; i < 3*colorBins; i++ {
		vec[i] /= float32(pixels)
	}

	rMean, gMean, bMean := rSum/pixels, gSum/pixels, bSum/pixels
	colorfulness := math.Abs(rMean-gMean) + math.Abs(gMean-bMean) + math.Abs(bMean-rMean)

	mean := lumSum / pixels
	variance := math.Max(0, lumSqSum/pixels-mean*mean)

	vec[3*colorBins] = float32(math.Min(1.0, colorfulness/255.0))
	vec[3*colorBins+1] = float32(math.Min(1.0, math.Sqrt(variance)/60.0))
	vec[3*colorBins+2] = float32(mean / 255.0)

	return vec, nil
}

// Close is a no-op for the colour extractor
func (c *ColorExtractor) Close() error {
	return nil
}
