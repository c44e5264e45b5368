// Package render draws recognition results onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/facewatch/internal/pipeline"
	"gocv.io/x/gocv"
)

var (
	BoxColor     = color.RGBA{G: 255, A: 255}
	UnknownColor = color.RGBA{R: 255, A: 255}
	PlateColor   = color.RGBA{A: 255}
	TextColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	fontFace      = gocv.FontHersheySimplex
	fontScale     = 0.6
	fontThickness = 1
	boxThickness  = 2
	platePadding  = 5
)

// Caption returns the text drawn above a recognition: the label and, for
// accepted matches, the similarity.
func Caption(rec pipeline.Recognition) string {
	if !rec.Match.Accepted {
		return rec.Label()
	}
	caption := fmt.Sprintf("%s %.2f", rec.Label(), rec.Match.BestSimilarity)
	if rec.Match.LowConfidence {
		caption += "?"
	}
	return caption
}

// Draw outlines every recognition on frame and labels it on a black plate
// with white text. Accepted faces are boxed in green, unknown ones in red.
func Draw(frame *gocv.Mat, recs []pipeline.Recognition) {
	for _, rec := range recs {
		boxColor := BoxColor
		if !rec.Match.Accepted {
			boxColor = UnknownColor
		}
		gocv.Rectangle(frame, rec.Region, boxColor, boxThickness)
		drawLabel(frame, Caption(rec), rec.Region.Min)
	}
}

// drawLabel writes text just above origin, or inside the frame when there
// is no room above.
func drawLabel(frame *gocv.Mat, text string, origin image.Point) {
	size := gocv.GetTextSize(text, fontFace, fontScale, fontThickness)

	baseline := origin.Y - platePadding
	if baseline-size.Y-platePadding < 0 {
		baseline = origin.Y + size.Y + platePadding
	}
	textOrigin := image.Pt(origin.X, baseline)

	plate := image.Rect(
		textOrigin.X,
		textOrigin.Y-size.Y-platePadding,
		textOrigin.X+size.X+platePadding,
		textOrigin.Y+platePadding,
	)
	gocv.Rectangle(frame, plate, PlateColor, -1)
	gocv.PutText(frame, text, textOrigin, fontFace, fontScale, TextColor, fontThickness)
}
