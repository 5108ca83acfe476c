package extract

import (
	"image"
	"image/color"
	"math"
	"sort"
)

// Preprocess runs the deterministic chain applied to every receipt
// photo before OCR: grayscale, contrast stretch, deskew. The same input
// always yields the same output, so OCR confidence is reproducible
// across re-runs.
func Preprocess(img image.Image) *image.Gray {
	gray := toGray(img)
	gray = stretchContrast(gray)
	return deskew(gray)
}

func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// stretchContrast remaps pixel intensities so the 2nd..98th percentile
// range fills the full [0, 255] span. Clipping the extremes keeps
// shadows and glare spots from flattening the histogram of an otherwise
// readable receipt.
func stretchContrast(gray *image.Gray) *image.Gray {
	pixels := gray.Pix
	if len(pixels) == 0 {
		return gray
	}

	sorted := make([]byte, len(pixels))
	copy(sorted, pixels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	lo := float64(sorted[len(sorted)*2/100])
	hi := float64(sorted[len(sorted)*98/100])
	if hi-lo < 1 {
		return gray
	}

	out := image.NewGray(gray.Bounds())
	for i, p := range pixels {
		v := (float64(p) - lo) / (hi - lo) * 255
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out.Pix[i] = uint8(v)
	}
	return out
}

const (
	maxSkewDegrees  = 5.0
	skewStepDegrees = 0.5
)

// deskew estimates the dominant text-line angle by maximizing the
// variance of horizontal projection profiles over a small angle sweep,
// then rotates by the best candidate. Receipts photographed close to
// level need at most a few degrees of correction; anything steeper is
// left alone rather than risk smearing the text.
func deskew(gray *image.Gray) *image.Gray {
	best := 0.0
	bestScore := projectionVariance(gray, 0)
	for angle := -maxSkewDegrees; angle <= maxSkewDegrees; angle += skewStepDegrees {
		if angle == 0 {
			continue
		}
		if score := projectionVariance(gray, angle); score > bestScore {
			bestScore = score
			best = angle
		}
	}
	if best == 0 {
		return gray
	}
	return rotate(gray, best)
}

// projectionVariance sums row darkness along lines tilted by the given
// angle. Text aligned with the scan direction produces sharply peaked
// rows (high variance); skewed text smears across rows.
func projectionVariance(gray *image.Gray, degrees float64) float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	slope := math.Tan(degrees * math.Pi / 180)
	rows := make([]float64, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yy := y + int(slope*float64(x))
			if yy < 0 || yy >= h {
				continue
			}
			rows[yy] += 255 - float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
		}
	}

	var mean float64
	for _, r := range rows {
		mean += r
	}
	mean /= float64(h)

	var variance float64
	for _, r := range rows {
		d := r - mean
		variance += d * d
	}
	return variance / float64(h)
}

// rotate applies a nearest-neighbor rotation about the image center,
// filling uncovered corners with white (paper background).
func rotate(gray *image.Gray, degrees float64) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := int(cos*dx + sin*dy + cx)
			sy := int(-sin*dx + cos*dy + cy)
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				out.SetGray(x, y, color.Gray{Y: 255})
				continue
			}
			out.SetGray(x, y, gray.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return out
}
