package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// Test images are blank Mats whose width identifies them; the fake detector
// looks up its answer by width.
var imageWidths = map[string]int{
	"alice.jpg": 100,
	"bob.jpg":   110,
	"empty.jpg": 120,
	"crowd.jpg": 130,
	"alice.png": 140,
	"broken":    0,
}

func fakeLoader(path string) (gocv.Mat, error) {
	w, ok := imageWidths[filepath.Base(path)]
	if !ok || w == 0 {
		return gocv.NewMat(), fmt.Errorf("%s: cannot decode", path)
	}
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, w, gocv.MatTypeCV8UC3), nil
}

type fakeDetector struct {
	byWidth map[int][]image.Rectangle
}

func (d *fakeDetector) Detect(img gocv.Mat) ([]image.Rectangle, error) {
	return d.byWidth[img.Cols()], nil
}

func (d *fakeDetector) Close() error { return nil }

func newFakeDetector() *fakeDetector {
	return &fakeDetector{byWidth: map[int][]image.Rectangle{
		100: {image.Rect(10, 10, 50, 50)},
		110: {image.Rect(0, 0, 40, 60)},
		130: {image.Rect(0, 0, 20, 20), image.Rect(30, 30, 90, 90), image.Rect(5, 5, 25, 25)},
		140: {image.Rect(80, 50, 200, 200)}, // spills past the image edge
	}}
}

// sizeExtractor describes a crop by its dimensions, which lets tests see
// which region was chosen.
type sizeExtractor struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (e *sizeExtractor) Extract(face gocv.Mat) (descriptor.Descriptor, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail[face.Cols()] {
		return nil, errors.New("extraction failed")
	}
	return descriptor.Descriptor{float32(face.Cols()), float32(face.Rows())}, nil
}

func enrollment(mutate func(*config.Enrollment)) config.Enrollment {
	cfg := config.Default().Enrollment
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func src(name, label string) Source {
	return Source{Path: filepath.Join("enroll", name), Label: label}
}

func TestBuildSkipsImagesWithoutFaces(t *testing.T) {
	b := NewBuilder(newFakeDetector(), &sizeExtractor{}, enrollment(nil), nil, WithLoader(fakeLoader))

	g, report := b.Build(context.Background(), []Source{
		src("alice.jpg", "alice"),
		src("empty.jpg", "nobody"),
		src("bob.jpg", "bob"),
	})

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"alice", "bob"}, g.Labels())
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "nobody", report.Failures[0].Source.Label)
	assert.ErrorIs(t, report.Failures[0].Err, ErrNoFace)
	assert.Equal(t, filepath.Join("enroll", "alice.jpg"), g.At(0).Source)
}

func TestBuildRecordsLoadAndExtractFailures(t *testing.T) {
	ex := &sizeExtractor{fail: map[int]bool{40: true}}
	b := NewBuilder(newFakeDetector(), ex, enrollment(nil), nil, WithLoader(fakeLoader))

	g, report := b.Build(context.Background(), []Source{
		src("broken", "broken"),
		src("bob.jpg", "bob"),
		src("alice.jpg", "alice"),
	})

	assert.Equal(t, []string{"alice"}, g.Labels())
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Succeeded)
}

func TestRegionPolicies(t *testing.T) {
	tests := []struct {
		policy  string
		want    descriptor.Descriptor
		wantErr error
	}{
		{config.RegionFirst, descriptor.Descriptor{20, 20}, nil},
		{config.RegionLargest, descriptor.Descriptor{60, 60}, nil},
		{config.RegionRejectMulti, nil, ErrMultipleFaces},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			cfg := enrollment(func(c *config.Enrollment) { c.RegionPolicy = tt.policy })
			b := NewBuilder(newFakeDetector(), &sizeExtractor{}, cfg, nil, WithLoader(fakeLoader))

			g, report := b.Build(context.Background(), []Source{src("crowd.jpg", "crowd")})
			if tt.wantErr != nil {
				assert.Zero(t, g.Len())
				require.Len(t, report.Failures, 1)
				assert.ErrorIs(t, report.Failures[0].Err, tt.wantErr)
				return
			}
			require.Equal(t, 1, g.Len())
			assert.Equal(t, tt.want, g.At(0).Descriptor)
		})
	}
}

func TestRegionIsClippedToImage(t *testing.T) {
	b := NewBuilder(newFakeDetector(), &sizeExtractor{}, enrollment(nil), nil, WithLoader(fakeLoader))

	g, _ := b.Build(context.Background(), []Source{src("alice.png", "alice")})

	require.Equal(t, 1, g.Len())
	// Image is 140x100; region starts at (80,50).
	assert.Equal(t, descriptor.Descriptor{60, 50}, g.At(0).Descriptor)
}

func TestDuplicateLabels(t *testing.T) {
	sources := []Source{src("alice.jpg", "alice"), src("bob.jpg", "bob"), src("alice.png", "alice")}

	allow := NewBuilder(newFakeDetector(), &sizeExtractor{}, enrollment(nil), nil, WithLoader(fakeLoader))
	g, report := allow.Build(context.Background(), sources)
	assert.Equal(t, []string{"alice", "bob", "alice"}, g.Labels())
	assert.Zero(t, report.Failed)

	cfg := enrollment(func(c *config.Enrollment) { c.DuplicateLabels = config.DuplicatesReject })
	reject := NewBuilder(newFakeDetector(), &sizeExtractor{}, cfg, nil, WithLoader(fakeLoader))
	g, report = reject.Build(context.Background(), sources)
	assert.Equal(t, []string{"alice", "bob"}, g.Labels())
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrDuplicateLabel)
	assert.Equal(t, filepath.Join("enroll", "alice.png"), report.Failures[0].Source.Path)
}

func TestParallelBuildKeepsSourceOrder(t *testing.T) {
	var sources []Source
	for i := 0; i < 12; i++ {
		name := []string{"alice.jpg", "bob.jpg", "alice.png"}[i%3]
		sources = append(sources, src(name, fmt.Sprintf("person-%02d", i)))
	}

	serial := NewBuilder(newFakeDetector(), &sizeExtractor{}, enrollment(nil), nil, WithLoader(fakeLoader))
	want, _ := serial.Build(context.Background(), sources)

	var mu sync.Mutex
	progressed := 0
	cfg := enrollment(func(c *config.Enrollment) { c.Workers = 4 })
	parallel := NewBuilder(newFakeDetector(), &sizeExtractor{}, cfg, nil,
		WithLoader(fakeLoader),
		WithProgress(func(Source, error) {
			mu.Lock()
			progressed++
			mu.Unlock()
		}))
	got, report := parallel.Build(context.Background(), sources)

	assert.Equal(t, want.Entries(), got.Entries())
	assert.Equal(t, len(sources), report.Succeeded)
	assert.Equal(t, len(sources), progressed)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := &sizeExtractor{}
	b := NewBuilder(newFakeDetector(), ex, enrollment(nil), nil, WithLoader(fakeLoader))

	g, report := b.Build(ctx, []Source{src("alice.jpg", "alice"), src("bob.jpg", "bob")})

	assert.Zero(t, g.Len())
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Attempted)
	assert.Zero(t, ex.calls)
}

func TestNewRejectsEmptyDescriptor(t *testing.T) {
	_, err := New(Entry{Label: "a", Descriptor: descriptor.Descriptor{1}}, Entry{Label: "b"})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	d := descriptor.Descriptor{0.1, 0.2}
	g, err := New(Entry{Label: "a", Descriptor: d})
	require.NoError(t, err)
	d[0] = 0.9
	assert.Equal(t, float32(0.1), g.At(0).Descriptor[0], "gallery must not alias caller slices")
}

func TestNilGallery(t *testing.T) {
	var g *Gallery
	assert.Zero(t, g.Len())
	assert.Nil(t, g.Labels())
	assert.Nil(t, g.Entries())
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bob.PNG", "alice.jpg", "notes.txt", ".jpg", "carol.webp", "dave.jpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "eve.jpg"), 0o755))

	sources, err := ScanDir(dir, []string{".jpg", "jpeg", ".png"})
	require.NoError(t, err)

	assert.Equal(t, []Source{
		{Path: filepath.Join(dir, "alice.jpg"), Label: "alice"},
		{Path: filepath.Join(dir, "bob.PNG"), Label: "bob"},
		{Path: filepath.Join(dir, "dave.jpeg"), Label: "dave"},
	}, sources)
}

func TestScanDirMissing(t *testing.T) {
	_, err := ScanDir(filepath.Join(t.TempDir(), "nope"), []string{".jpg"})
	assert.Error(t, err)
}
