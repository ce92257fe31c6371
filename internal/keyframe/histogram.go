package keyframe

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Bins is the histogram resolution for 8-bit luminance
const Bins = 256

// Histogram is a grayscale distribution normalised to unit L2 norm
type Histogram [Bins]float64

// ComputeHistogram builds the normalised luminance histogram of img.
// An image with no pixels yields the zero histogram.
func ComputeHistogram(img image.Image) Histogram {
	var h Histogram

	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+bounds.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			// R == G == B after grayscale conversion
			h[row[x]]++
		}
	}

	var norm float64
	for _, v := range h {
		norm += v * v
	}
	if norm == 0 {
		return h
	}
	norm = math.Sqrt(norm)
	for i := range h {
		h[i] /= norm
	}
	return h
}

// Correlation returns the Pearson correlation of two histograms in [-1, 1].
// Lower values mean the underlying frames are more different. When either
// histogram has zero variance the coefficient is undefined; identical
// histograms then score 1 and anything else scores 0.
func Correlation(a, b Histogram) float64 {
	var meanA, meanB float64
	for i := 0; i < Bins; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= Bins
	meanB /= Bins

	var num, varA, varB float64
	for i := 0; i < Bins; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		varA += da * da
		varB += db * db
	}

	den := math.Sqrt(varA * varB)
	if den == 0 {
		if a == b {
			return 1
		}
		return 0
	}

	r := num / den
	// rounding can push identical inputs a hair past 1
	return math.Max(-1, math.Min(1, r))
}
