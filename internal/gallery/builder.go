package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/detector"
	"github.com/andresmejia3/facewatch/internal/imageio"
	"github.com/andresmejia3/facewatch/internal/worker"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrNoFace means no face region was found in an enrollment image.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces means the image has several faces and the region
	// policy does not allow choosing one.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrDuplicateLabel means the label was already enrolled and duplicates
	// are rejected.
	ErrDuplicateLabel = errors.New("label already enrolled")
)

// Extractor turns a face crop into a descriptor.
type Extractor interface {
	Extract(face gocv.Mat) (descriptor.Descriptor, error)
}

// Loader decodes the image at path.
type Loader func(path string) (gocv.Mat, error)

// Failure records why one source did not make it into the gallery.
type Failure struct {
	Source Source
	Err    error
}

// Report summarizes a build.
type Report struct {
	Attempted int
	Succeeded int
	Failed    int
	// Skipped counts sources never attempted because the build was cancelled.
	Skipped  int
	Failures []Failure
}

// Option customizes a Builder.
type Option func(*Builder)

// WithLoader replaces the image loader (imageio.Load by default).
func WithLoader(l Loader) Option {
	return func(b *Builder) { b.load = l }
}

// WithProgress registers a callback invoked after each source is processed.
// It may be called from several goroutines.
func WithProgress(fn func(Source, error)) Option {
	return func(b *Builder) { b.progress = fn }
}

// Builder builds a Gallery from enrollment images.
type Builder struct {
	detector  detector.Detector
	extractor Extractor
	cfg       config.Enrollment
	logger    *zap.Logger
	load      Loader
	progress  func(Source, error)

	// detectors are not safe for concurrent use
	detectMu sync.Mutex
}

// NewBuilder returns a Builder using det to locate faces and ex to describe them.
func NewBuilder(det detector.Detector, ex Extractor, cfg config.Enrollment, logger *zap.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		detector:  det,
		extractor: ex,
		cfg:       cfg,
		logger:    logger.Named("gallery"),
		load:      imageio.Load,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build enrolls every source it can. Failures are recorded in the report and
// never abort the build. The gallery keeps the order of sources regardless
// of how many workers are used. If ctx is cancelled, the sources enrolled so
// far are returned.
func (b *Builder) Build(ctx context.Context, sources []Source) (*Gallery, Report) {
	results := worker.Map(ctx, b.cfg.Workers, sources, func(ctx context.Context, src Source) (Entry, error) {
		entry, err := b.enroll(src)
		if b.progress != nil {
			b.progress(src, err)
		}
		return entry, err
	})

	var (
		report  Report
		entries = make([]Entry, 0, len(sources))
		seen    = make(map[string]bool, len(sources))
	)
	for i, res := range results {
		src := sources[i]
		err := res.Err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Skipped++
			continue
		}
		report.Attempted++

		if err == nil && seen[src.Label] && b.cfg.DuplicateLabels == config.DuplicatesReject {
			err = ErrDuplicateLabel
		}
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{Source: src, Err: err})
			b.logger.Warn("skipping enrollment image",
				zap.String("path", src.Path),
				zap.String("label", src.Label),
				zap.Error(err))
			continue
		}

		if seen[src.Label] {
			b.logger.Debug("duplicate label enrolled; the earlier entry wins ties", zap.String("label", src.Label))
		}
		seen[src.Label] = true
		entries = append(entries, res.Value)
		report.Succeeded++
	}

	b.logger.Info("gallery built",
		zap.Int("attempted", report.Attempted),
		zap.Int("enrolled", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))

	// Every entry carries a descriptor from a successful extraction.
	return &Gallery{entries: entries}, report
}

func (b *Builder) enroll(src Source) (Entry, error) {
	img, err := b.load(src.Path)
	defer img.Close()
	if err != nil {
		return Entry{}, err
	}

	rects, err := b.detect(img)
	if err != nil {
		return Entry{}, fmt.Errorf("detect faces: %w", err)
	}
	region, err := b.selectRegion(rects)
	if err != nil {
		return Entry{}, err
	}
	region = region.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if region.Empty() {
		return Entry{}, ErrNoFace
	}

	face := img.Region(region)
	defer face.Close()
	d, err := b.extractor.Extract(face)
	if err != nil {
		return Entry{}, fmt.Errorf("extract descriptor: %w", err)
	}
	if len(d) == 0 {
		return Entry{}, ErrInvalidEntry
	}

	b.logger.Debug("enrolled",
		zap.String("label", src.Label),
		zap.Int("faces", len(rects)),
		zap.Stringer("region", region))
	return Entry{Label: src.Label, Descriptor: d, Source: src.Path}, nil
}

func (b *Builder) detect(img gocv.Mat) ([]image.Rectangle, error) {
	b.detectMu.Lock()
	defer b.detectMu.Unlock()
	return b.detector.Detect(img)
}

// selectRegion picks the enrollment face according to the region policy.
func (b *Builder) selectRegion(rects []image.Rectangle) (image.Rectangle, error) {
	if len(rects) == 0 {
		return image.Rectangle{}, ErrNoFace
	}

	switch b.cfg.RegionPolicy {
	case config.RegionLargest:
		best := 0
		for i, r := range rects {
			if area(r) > area(rects[best]) {
				best = i
			}
		}
		return rects[best], nil
	case config.RegionRejectMulti:
		if len(rects) > 1 {
			return image.Rectangle{}, fmt.Errorf("%w (%d)", ErrMultipleFaces, len(rects))
		}
		return rects[0], nil
	default:
		return rects[0], nil
	}
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
