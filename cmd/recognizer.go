package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facewatch/internal/detector"
	"github.com/andresmejia3/facewatch/internal/extract"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/matcher"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// recognizer bundles the engine with the collaborators enrollment reuses.
type recognizer struct {
	engine    *pipeline.Engine
	detector  detector.Detector
	extractor *extract.Extractor
}

// newRecognizer loads the cascade and wires an initialized engine. Closing
// the engine releases the detector.
func newRecognizer() (*recognizer, error) {
	det, err := detector.NewCascade(tuning.Detector, logger)
	if err != nil {
		return nil, err
	}
	ex := extract.New(tuning.Extractor, logger)
	engine := pipeline.New(det, ex, matcher.New(tuning.Matcher, logger), logger)
	if err := engine.Initialize(); err != nil {
		det.Close()
		return nil, err
	}
	return &recognizer{engine: engine, detector: det, extractor: ex}, nil
}

// enroll scans dir and builds the gallery, showing progress on stderr.
func (r *recognizer) enroll(ctx context.Context, dir string) (*gallery.Gallery, gallery.Report, error) {
	sources, err := gallery.ScanDir(dir, tuning.Enrollment.Extensions)
	if err != nil {
		return nil, gallery.Report{}, err
	}
	if len(sources) == 0 {
		return nil, gallery.Report{}, fmt.Errorf("no enrollment images found in %s", dir)
	}

	fmt.Fprintf(os.Stderr, "📂 Enrolling %d images from %s...\n", len(sources), dir)
	bar := progressbar.NewOptions(len(sources),
		progressbar.OptionSetDescription("🧑 Enrolling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	b := gallery.NewBuilder(r.detector, r.extractor, tuning.Enrollment, logger,
		gallery.WithProgress(func(gallery.Source, error) { bar.Add(1) }))
	g, report := b.Build(ctx, sources)
	bar.Finish()

	if err := ctx.Err(); err != nil {
		return g, report, err
	}
	return g, report, nil
}

// loadGallery enrolls dir and fails when nothing could be enrolled.
func (r *recognizer) loadGallery(ctx context.Context, dir string) (*gallery.Gallery, error) {
	g, report, err := r.enroll(ctx, dir)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "✅ Enrolled %d of %d faces (%d failed)\n", report.Succeeded, report.Attempted, report.Failed)
	if g.Len() == 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Gallery is empty; every face will be reported as %s.\n", tuning.Matcher.UnknownLabel)
	}
	return g, nil
}
