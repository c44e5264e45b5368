// Package imageio decodes enrollment and request images into BGR Mats,
// applying the EXIF orientation recorded by the camera.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	"gocv.io/x/gocv"
	"golang.org/x/image/webp"
)

// ErrUndecodable is returned when the bytes are not an image format we can read.
var ErrUndecodable = errors.New("image could not be decoded")

// Load reads and decodes the image file at path.
func Load(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("read image: %w", err)
	}
	m, err := Decode(data)
	if err != nil {
		return m, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode turns encoded image bytes (JPEG, PNG, BMP, WebP, ...) into an
// upright 8-bit BGR Mat. The caller owns the returned Mat.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrUndecodable
	}

	var (
		m   gocv.Mat
		err error
	)
	if isWebP(data) {
		m, err = decodeWebP(data)
	} else {
		// Orientation is applied below from the EXIF tag so every format is
		// handled the same way.
		m, err = gocv.IMDecode(data, gocv.IMReadColor|gocv.IMReadIgnoreOrientation)
	}
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if m.Empty() {
		return m, ErrUndecodable
	}

	if o := Orientation(data); o > 1 {
		upright := ApplyOrientation(m, o)
		m.Close()
		m = upright
	}
	return m, nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
}

func decodeWebP(data []byte) (gocv.Mat, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return gocv.NewMat(), err
	}
	return gocv.ImageToMatRGB(img)
}

// Orientation returns the EXIF orientation (1-8) of the image, or 1 when the
// data has no readable orientation tag.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// orientationOp describes how to bring an image with a given EXIF
// orientation upright: an optional rotation followed by an optional flip.
type orientationOp struct {
	rotate bool
	flag   gocv.RotateFlag
	flip   bool
	code   int // 0 flips around the x axis, 1 around the y axis
}

var orientationOps = map[int]orientationOp{
	2: {flip: true, code: 1},
	3: {rotate: true, flag: gocv.Rotate180Clockwise},
	4: {flip: true, code: 0},
	5: {rotate: true, flag: gocv.Rotate90Clockwise, flip: true, code: 1},
	6: {rotate: true, flag: gocv.Rotate90Clockwise},
	7: {rotate: true, flag: gocv.Rotate90CounterClockwise, flip: true, code: 1},
	8: {rotate: true, flag: gocv.Rotate90CounterClockwise},
}

// ApplyOrientation returns a new Mat with the EXIF orientation o undone.
// Unknown orientations return a plain copy.
func ApplyOrientation(src gocv.Mat, o int) gocv.Mat {
	out := src.Clone()
	op, ok := orientationOps[o]
	if !ok {
		return out
	}

	if op.rotate {
		rotated := gocv.NewMat()
		gocv.Rotate(out, &rotated, op.flag)
		out.Close()
		out = rotated
	}
	if op.flip {
		flipped := gocv.NewMat()
		gocv.Flip(out, &flipped, op.code)
		out.Close()
		out = flipped
	}
	return out
}
