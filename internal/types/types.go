package types

import (
	"image"

	"github.com/andresmejia3/facewatch/internal/pipeline"
)

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoxFromRect converts an image rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect converts the Box back to an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Detection is the JSON view of one recognized face, shared by the CLI and
// the HTTP API.
type Detection struct {
	Box           Box     `json:"box"`
	Label         string  `json:"label"`
	BestLabel     string  `json:"best_label,omitempty"`
	Similarity    float64 `json:"similarity"`
	Threshold     float64 `json:"threshold"`
	Accepted      bool    `json:"accepted"`
	LowConfidence bool    `json:"low_confidence"`
}

// FromRecognition builds the Detection for rec.
func FromRecognition(rec pipeline.Recognition) Detection {
	return Detection{
		Box:           BoxFromRect(rec.Region),
		Label:         rec.Label(),
		BestLabel:     rec.Match.BestLabel,
		Similarity:    rec.Match.BestSimilarity,
		Threshold:     rec.Match.Threshold,
		Accepted:      rec.Match.Accepted,
		LowConfidence: rec.Match.LowConfidence,
	}
}

// FromRecognitions converts a frame's recognitions, never returning nil.
func FromRecognitions(recs []pipeline.Recognition) []Detection {
	out := make([]Detection, 0, len(recs))
	for _, r := range recs {
		out = append(out, FromRecognition(r))
	}
	return out
}

// Comparison is the JSON view of a pairwise face comparison.
type Comparison struct {
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
	Threshold  float64 `json:"threshold"`
	Match      bool    `json:"match"`
	BoxA       Box     `json:"box_a"`
	BoxB       Box     `json:"box_b"`
}
