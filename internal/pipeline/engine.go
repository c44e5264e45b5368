// Package pipeline runs detection, description and matching over single
// frames.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/detector"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/matcher"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrNotInitialized is returned by Process before Initialize or after Close.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrNoFace is returned by Describe when the image has no detectable face.
	ErrNoFace = errors.New("no face detected")
)

// Recognition is one labeled face region of a frame.
type Recognition struct {
	Region     image.Rectangle
	Descriptor descriptor.Descriptor
	Match      matcher.Result
}

// Label is the accepted identity or the unknown label.
func (r Recognition) Label() string {
	return r.Match.Label
}

// Engine is the per-frame recognizer. It keeps no state between frames.
// Process and Describe must not be called concurrently because the detector
// is not safe for concurrent use.
type Engine struct {
	detector  detector.Detector
	extractor gallery.Extractor
	matcher   *matcher.Matcher
	logger    *zap.Logger

	mu    sync.RWMutex
	ready bool
}

// New wires an engine from its collaborators. It must be initialized before use.
func New(det detector.Detector, ex gallery.Extractor, m *matcher.Matcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{detector: det, extractor: ex, matcher: m, logger: logger.Named("pipeline")}
}

// Initialize checks that every collaborator is present and marks the engine ready.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detector == nil || e.extractor == nil || e.matcher == nil {
		return fmt.Errorf("initialize engine: missing detector, extractor or matcher")
	}
	e.ready = true
	e.logger.Debug("engine initialized")
	return nil
}

// Close marks the engine unusable and releases the detector.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return nil
	}
	e.ready = false
	return e.detector.Close()
}

func (e *Engine) isReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Process recognizes every face in frame against g. Regions whose
// extraction fails are skipped. Results follow detector order. A frame with
// no faces yields an empty result.
func (e *Engine) Process(frame gocv.Mat, g *gallery.Gallery) ([]Recognition, error) {
	if !e.isReady() {
		return nil, ErrNotInitialized
	}
	if frame.Empty() {
		return nil, nil
	}

	rects, err := e.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	recs := make([]Recognition, 0, len(rects))
	for _, r := range rects {
		region := clip(r, frame)
		if region.Empty() {
			continue
		}

		d, err := e.describeRegion(frame, region)
		if err != nil {
			e.logger.Debug("skipping region", zap.Stringer("region", region), zap.Error(err))
			continue
		}

		recs = append(recs, Recognition{
			Region:     region,
			Descriptor: d,
			Match:      e.matcher.Match(d, g),
		})
	}
	return recs, nil
}

// Describe returns the descriptor of the first face found in img and its region.
func (e *Engine) Describe(img gocv.Mat) (descriptor.Descriptor, image.Rectangle, error) {
	if !e.isReady() {
		return nil, image.Rectangle{}, ErrNotInitialized
	}
	if img.Empty() {
		return nil, image.Rectangle{}, ErrNoFace
	}

	rects, err := e.detector.Detect(img)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("detect faces: %w", err)
	}
	for _, r := range rects {
		region := clip(r, img)
		if region.Empty() {
			continue
		}
		d, err := e.describeRegion(img, region)
		if err != nil {
			return nil, region, err
		}
		return d, region, nil
	}
	return nil, image.Rectangle{}, ErrNoFace
}

// Matcher returns the matcher used by Process.
func (e *Engine) Matcher() *matcher.Matcher {
	return e.matcher
}

func (e *Engine) describeRegion(img gocv.Mat, region image.Rectangle) (descriptor.Descriptor, error) {
	face := img.Region(region)
	defer face.Close()
	d, err := e.extractor.Extract(face)
	if err != nil {
		return nil, err
	}
	if len(d) == 0 {
		return nil, errors.New("extractor returned an empty descriptor")
	}
	return d, nil
}

func clip(r image.Rectangle, img gocv.Mat) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
}
