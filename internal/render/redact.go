package render

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Redaction styles.
const (
	StyleBlack  = "black"
	StylePixel  = "pixel"
	StyleGauss  = "gauss"
	StyleSecure = "secure"
)

// Styles lists every redaction style Redact understands.
var Styles = []string{StyleBlack, StylePixel, StyleGauss, StyleSecure}

// ValidStyle reports whether style is one of Styles.
func ValidStyle(style string) bool {
	for _, s := range Styles {
		if s == style {
			return true
		}
	}
	return false
}

// Redact hides rect on frame in place. strength is the pixel block size for
// "pixel" and the kernel radius for "gauss". Rectangles are clipped to the
// frame; an empty intersection is a no-op.
func Redact(frame *gocv.Mat, rect image.Rectangle, style string, strength int) error {
	if !ValidStyle(style) {
		return fmt.Errorf("unknown redaction style %q", style)
	}
	rect = rect.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if rect.Empty() {
		return nil
	}
	strength = max(strength, 1)

	// roi shares pixels with frame
	roi := frame.Region(rect)
	defer roi.Close()

	switch style {
	case StyleBlack:
		roi.SetTo(gocv.NewScalar(0, 0, 0, 0))
	case StylePixel:
		small := gocv.NewMat()
		defer small.Close()
		blocks := image.Pt(max(rect.Dx()/strength, 1), max(rect.Dy()/strength, 1))
		gocv.Resize(roi, &small, blocks, 0, 0, gocv.InterpolationArea)

		big := gocv.NewMat()
		defer big.Close()
		gocv.Resize(small, &big, rect.Size(), 0, 0, gocv.InterpolationNearestNeighbor)
		big.CopyTo(&roi)
	case StyleGauss:
		blurred := gocv.NewMat()
		defer blurred.Close()
		k := 2*strength + 1
		gocv.GaussianBlur(roi, &blurred, image.Pt(k, k), 0, 0, gocv.BorderReflect)
		blurred.CopyTo(&roi)
	case StyleSecure:
		roi.SetTo(borderMean(*frame, rect))
	}
	return nil
}

// borderMean averages the one pixel ring just outside rect, so the filled
// region blends into its surroundings. A rect covering the whole frame has
// no ring and is filled black.
func borderMean(frame gocv.Mat, rect image.Rectangle) gocv.Scalar {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	strips := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y-1, rect.Max.X, rect.Min.Y),
		image.Rect(rect.Min.X, rect.Max.Y, rect.Max.X, rect.Max.Y+1),
		image.Rect(rect.Min.X-1, rect.Min.Y, rect.Min.X, rect.Max.Y),
		image.Rect(rect.Max.X, rect.Min.Y, rect.Max.X+1, rect.Max.Y),
	}

	var sum [3]float64
	total := 0
	for _, s := range strips {
		s = s.Intersect(bounds)
		if s.Empty() {
			continue
		}
		strip := frame.Region(s)
		m := strip.Mean()
		strip.Close()

		n := s.Dx() * s.Dy()
		sum[0] += m.Val1 * float64(n)
		sum[1] += m.Val2 * float64(n)
		sum[2] += m.Val3 * float64(n)
		total += n
	}
	if total == 0 {
		return gocv.NewScalar(0, 0, 0, 0)
	}
	return gocv.NewScalar(sum[0]/float64(total), sum[1]/float64(total), sum[2]/float64(total), 0)
}
