// Package identify resolves cropped image regions to canonical entity IDs
// using a versioned asset manifest. Identification is set-agnostic: swapping
// the manifest retargets the resolver to a new game set without retraining
// anything.
package identify

import (
	"image"
	"math"
)

const (
	// Gradient grid: 9 columns sampled, 8 horizontal gradient bits per row.
	gradCols = 9
	gradRows = 8

	// Per-channel coarse color histogram bins.
	histBins = 16

	// histWeight scales the histogram fractions so the palette half of the
	// descriptor carries weight comparable to the 64 binary gradient bits;
	// unweighted, structure would dominate the cosine and two icons with
	// similar geometry but different palettes could collide.
	histWeight = 4.0

	// FingerprintDim is the fixed descriptor size: 64 gradient bits plus
	// three 16-bin channel histograms.
	FingerprintDim = gradRows*(gradCols-1) + 3*histBins
)

// Fingerprint is a fixed-size numeric descriptor of a cropped region.
// It is a pure function of pixel content: no randomness, no external state.
type Fingerprint []float32

// Compute derives the fingerprint of an image: a difference-hash over a
// downsampled luminance grid concatenated with normalized per-channel color
// histograms. The hash part captures structure, the histograms capture
// palette; together they separate icons that share either one.
func Compute(img image.Image) Fingerprint {
	fp := make(Fingerprint, 0, FingerprintDim)
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return make(Fingerprint, FingerprintDim)
	}

	// Box-averaged luminance on a gradCols x gradRows grid.
	var gray [gradRows][gradCols]float64
	for cy := 0; cy < gradRows; cy++ {
		y0 := b.Min.Y + cy*b.Dy()/gradRows
		y1 := b.Min.Y + (cy+1)*b.Dy()/gradRows
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for cx := 0; cx < gradCols; cx++ {
			x0 := b.Min.X + cx*b.Dx()/gradCols
			x1 := b.Min.X + (cx+1)*b.Dx()/gradCols
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var sum float64
			var n int
			for y := y0; y < y1 && y < b.Max.Y; y++ {
				for x := x0; x < x1 && x < b.Max.X; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
					n++
				}
			}
			if n > 0 {
				gray[cy][cx] = sum / float64(n)
			}
		}
	}

	// Horizontal gradient bits.
	for y := 0; y < gradRows; y++ {
		for x := 0; x < gradCols-1; x++ {
			if gray[y][x] > gray[y][x+1] {
				fp = append(fp, 1)
			} else {
				fp = append(fp, 0)
			}
		}
	}

	// Coarse RGB histograms, normalized by pixel count.
	var hist [3][histBins]float64
	var pixels int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			hist[0][r>>12]++
			hist[1][g>>12]++
			hist[2][bl>>12]++
			pixels++
		}
	}
	for ch := 0; ch < 3; ch++ {
		for bin := 0; bin < histBins; bin++ {
			fp = append(fp, float32(histWeight*hist[ch][bin]/float64(pixels)))
		}
	}

	return fp
}

// Similarity is the cosine similarity of two fingerprints in [−1, 1].
// Returns 0 for mismatched dimensions or zero-magnitude inputs.
func Similarity(a, b Fingerprint) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
