package render

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func whiteFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 60, 80, gocv.MatTypeCV8UC3)
}

func TestRedactBlack(t *testing.T) {
	frame := whiteFrame()
	defer frame.Close()

	require.NoError(t, Redact(&frame, image.Rect(10, 10, 30, 30), StyleBlack, 5))

	assert.Equal(t, uint8(0), frame.GetUCharAt(20, 20*3))
	assert.Equal(t, uint8(255), frame.GetUCharAt(5, 5*3), "pixels outside the region are untouched")
	assert.Equal(t, uint8(255), frame.GetUCharAt(20, 30*3), "the region's max edge is exclusive")
}

func TestRedactSecureUsesSurroundings(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 60, 80, gocv.MatTypeCV8UC3)
	defer frame.Close()
	inner := frame.Region(image.Rect(20, 20, 40, 40))
	inner.SetTo(gocv.NewScalar(255, 255, 255, 0))
	inner.Close()

	require.NoError(t, Redact(&frame, image.Rect(20, 20, 40, 40), StyleSecure, 0))

	v := frame.GetVecbAt(30, 30)
	assert.Equal(t, []uint8{40, 80, 120}, []uint8{v[0], v[1], v[2]})
}

func TestRedactSmoothsDetail(t *testing.T) {
	for _, style := range []string{StylePixel, StyleGauss} {
		t.Run(style, func(t *testing.T) {
			frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 60, 80, gocv.MatTypeCV8UC3)
			defer frame.Close()
			// One bright pixel in the middle of the region.
			frame.SetUCharAt(30, 40*3, 255)

			require.NoError(t, Redact(&frame, image.Rect(20, 20, 60, 40), style, 8))

			assert.Less(t, frame.GetUCharAt(30, 40*3), uint8(255))
		})
	}
}

func TestRedactClipsAndValidates(t *testing.T) {
	frame := whiteFrame()
	defer frame.Close()

	assert.NoError(t, Redact(&frame, image.Rect(70, 50, 200, 200), StyleBlack, 1))
	assert.Equal(t, uint8(0), frame.GetUCharAt(59, 79*3))

	assert.NoError(t, Redact(&frame, image.Rect(100, 100, 120, 120), StyleBlack, 1), "regions outside the frame are ignored")
	assert.Error(t, Redact(&frame, image.Rect(0, 0, 10, 10), "sparkle", 1))
	assert.False(t, ValidStyle("sparkle"))
	assert.True(t, ValidStyle(StyleGauss))
}
