package extract

import (
	"image"
	"image/color"
	"testing"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// syntheticFace draws a face-like pattern: a skin-toned oval with darker
// eyes and mouth on a gradient background.
func syntheticFace(t *testing.T, w, h int, tint uint8) gocv.Mat {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg := uint8(40 + 120*y/h)
			c := color.RGBA{R: bg, G: bg / 2, B: tint, A: 255}

			dx, dy := (float64(x)-cx)/(0.4*float64(w)), (float64(y)-cy)/(0.45*float64(h))
			if dx*dx+dy*dy <= 1 {
				c = color.RGBA{R: 210, G: 160, B: 130, A: 255}
			}
			eyeY := h * 2 / 5
			if y > eyeY-h/20 && y < eyeY+h/20 && ((x > w*3/10 && x < w*4/10) || (x > w*6/10 && x < w*7/10)) {
				c = color.RGBA{R: 30, G: 20, B: 20, A: 255}
			}
			if y > h*7/10 && y < h*3/4 && x > w*2/5 && x < w*3/5 {
				c = color.RGBA{R: 120, G: 30, B: 40, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	m, err := gocv.ImageToMatRGB(img)
	require.NoError(t, err)
	return m
}

func newExtractor() *Extractor {
	return New(config.Default().Extractor, nil)
}

func assertWellFormed(t *testing.T, d descriptor.Descriptor) {
	t.Helper()
	require.Len(t, d, descriptor.Dimension)
	for i, v := range d {
		assert.GreaterOrEqual(t, v, float32(0), "value %d", i)
		assert.LessOrEqual(t, v, float32(1), "value %d", i)
	}
}

func TestExtractProducesFixedLengthInRange(t *testing.T) {
	ex := newExtractor()

	for _, size := range []image.Point{{112, 112}, {64, 80}, {300, 240}, {17, 23}} {
		face := syntheticFace(t, size.X, size.Y, 90)
		d, err := ex.Extract(face)
		face.Close()

		require.NoError(t, err, "size %v", size)
		assertWellFormed(t, d)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	ex := newExtractor()
	face := syntheticFace(t, 120, 140, 60)
	defer face.Close()

	first, err := ex.Extract(face)
	require.NoError(t, err)
	second, err := ex.Extract(face)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractDoesNotModifyInput(t *testing.T) {
	ex := newExtractor()
	face := syntheticFace(t, 50, 50, 10)
	defer face.Close()
	before := face.Clone()
	defer before.Close()

	_, err := ex.Extract(face)
	require.NoError(t, err)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(face, before, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	assert.Equal(t, 0, gocv.CountNonZero(gray))
}

func TestExtractEmptyImage(t *testing.T) {
	ex := newExtractor()
	empty := gocv.NewMat()
	defer empty.Close()

	d, err := ex.Extract(empty)
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Empty(t, d)
}

func TestExtractGrayAndBGRAInputs(t *testing.T) {
	ex := newExtractor()
	face := syntheticFace(t, 90, 90, 120)
	defer face.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(face, &gray, gocv.ColorBGRToGray)
	d, err := ex.Extract(gray)
	require.NoError(t, err)
	assertWellFormed(t, d)

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.CvtColor(face, &bgra, gocv.ColorBGRToBGRA)
	d, err = ex.Extract(bgra)
	require.NoError(t, err)
	assertWellFormed(t, d)
}

func TestExtractUnsupportedType(t *testing.T) {
	ex := newExtractor()
	m := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV32FC3)
	defer m.Close()

	_, err := ex.Extract(m)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestExtractFlatImageIsStillWellFormed(t *testing.T) {
	ex := newExtractor()
	flat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 60, 60, gocv.MatTypeCV8UC3)
	defer flat.Close()

	d, err := ex.Extract(flat)
	require.NoError(t, err)
	assertWellFormed(t, d)
}

func TestSimilarFacesScoreHigherThanDifferentFaces(t *testing.T) {
	ex := newExtractor()

	a := syntheticFace(t, 112, 112, 90)
	defer a.Close()
	aScaled := syntheticFace(t, 224, 224, 90)
	defer aScaled.Close()
	b := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(250, 10, 10, 0), 112, 112, gocv.MatTypeCV8UC3)
	defer b.Close()

	da, err := ex.Extract(a)
	require.NoError(t, err)
	daScaled, err := ex.Extract(aScaled)
	require.NoError(t, err)
	db, err := ex.Extract(b)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, descriptor.CosineSimilarity(da, da), 1e-6)
	assert.Greater(t, descriptor.CosineSimilarity(da, daScaled), descriptor.CosineSimilarity(da, db))
}

func TestSampleBudgetLeavesRoomForTail(t *testing.T) {
	ex := newExtractor()
	processed := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0.5, 0.5, 0.5, 0), 112, 112, gocv.MatTypeCV32FC3)
	defer processed.Close()

	head := make([]float32, 10)
	got := ex.appendSamples(head, processed)

	assert.Len(t, got, descriptor.Dimension-config.Default().Extractor.ReservedTail)
	assert.InDelta(t, 0.5*1.1, got[len(got)-1], 1e-6)
}

func TestFinalizePadsAndTruncates(t *testing.T) {
	ex := newExtractor()

	short := ex.finalize([]float32{0, 1, 2, 3})
	assertWellFormed(t, short)

	long := make([]float32, 300)
	for i := range long {
		long[i] = float32(i)
	}
	truncated := ex.finalize(long)
	assertWellFormed(t, truncated)
	// The ramp survives normalization: the tail is larger than the head.
	assert.Greater(t, truncated[100], truncated[10])
}
