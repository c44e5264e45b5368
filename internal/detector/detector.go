// Package detector locates face regions in an image.
package detector

import (
	"fmt"
	"image"
	"os"

	"github.com/andresmejia3/facewatch/internal/config"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Detector finds face bounding boxes in an image. An empty result is a
// valid outcome, not an error.
type Detector interface {
	Detect(img gocv.Mat) ([]image.Rectangle, error)
	Close() error
}

// Cascade is a Haar cascade face detector. It is not safe for concurrent use.
type Cascade struct {
	classifier gocv.CascadeClassifier
	cfg        config.Detector
	logger     *zap.Logger
}

// NewCascade loads the cascade file named in cfg.
func NewCascade(cfg config.Detector, logger *zap.Logger) (*Cascade, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(cfg.CascadePath); err != nil {
		return nil, fmt.Errorf("cascade file: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier %s", cfg.CascadePath)
	}

	return &Cascade{classifier: classifier, cfg: cfg, logger: logger.Named("detector")}, nil
}

// Detect runs the cascade on an equalized grayscale copy of img.
func (c *Cascade) Detect(img gocv.Mat) ([]image.Rectangle, error) {
	if img.Empty() {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}
	gocv.EqualizeHist(gray, &gray)

	minSize := image.Pt(c.cfg.MinSize, c.cfg.MinSize)
	rects := c.classifier.DetectMultiScaleWithParams(gray, c.cfg.ScaleFactor, c.cfg.MinNeighbors, 0, minSize, image.Point{})

	if len(rects) > 0 {
		c.logger.Debug("faces detected", zap.Int("count", len(rects)))
	}
	return rects, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	return c.classifier.Close()
}
