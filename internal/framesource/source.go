// Package framesource delivers decoded frames from cameras and video files.
package framesource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/facewatch/internal/utils"
	"gocv.io/x/gocv"
)

const megabyte = 1024 * 1024

// ErrCorruptFrame is returned by Next for a frame that could not be decoded.
// The stream remains usable.
var ErrCorruptFrame = errors.New("corrupt frame")

// Source yields frames until io.EOF. The caller owns every returned Mat.
type Source interface {
	Next(ctx context.Context) (gocv.Mat, error)
	Close() error
}

// Device reads from a capture device such as a webcam.
type Device struct {
	capture *gocv.VideoCapture
	id      int
}

// OpenDevice opens capture device id.
func OpenDevice(id int) (*Device, error) {
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("open capture device %d: %w", id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture device %d is not available", id)
	}
	return &Device{capture: capture, id: id}, nil
}

// Next grabs the next frame. A failed read is reported as io.EOF since
// capture devices do not distinguish a lost device from the end of a stream.
func (d *Device) Next(ctx context.Context) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}
	frame := gocv.NewMat()
	if ok := d.capture.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return gocv.NewMat(), io.EOF
	}
	return frame, nil
}

// Close releases the device.
func (d *Device) Close() error {
	return d.capture.Close()
}

// Stream decodes a concatenated MJPEG byte stream, such as the output of
// ffmpeg's image2pipe muxer.
type Stream struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	cmd      *utils.SafeCommand
	nth      int
	read     int
	lastRead int
}

// NewStream returns a Stream over r that yields every nth frame (every frame
// when nth < 2). If r is an io.Closer it is closed by Close.
func NewStream(r io.Reader, nth int) *Stream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJpeg)

	s := &Stream{scanner: scanner, nth: max(1, nth)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFile starts ffmpeg to decode the video at path into an MJPEG stream.
func OpenFile(path string, nth int) (*Stream, error) {
	ffmpeg := NewFFmpegCmd(path)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := NewStream(out, nth)
	s.cmd = ffmpeg
	return s, nil
}

// Next returns the next sampled frame.
func (s *Stream) Next(ctx context.Context) (gocv.Mat, error) {
	for {
		if err := ctx.Err(); err != nil {
			return gocv.NewMat(), err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return gocv.NewMat(), fmt.Errorf("frame scanner failed: %w", err)
			}
			return gocv.NewMat(), io.EOF
		}
		s.read++
		if s.read%s.nth != 0 {
			continue
		}
		s.lastRead = s.read

		frame, err := gocv.IMDecode(s.scanner.Bytes(), gocv.IMReadColor)
		if err != nil || frame.Empty() {
			frame.Close()
			return gocv.NewMat(), fmt.Errorf("%w %d", ErrCorruptFrame, s.read)
		}
		return frame, nil
	}
}

// FramesRead returns how many frames have been read from the stream,
// including the ones skipped by sampling.
func (s *Stream) FramesRead() int {
	return s.read
}

// Index returns the 1-based index of the last frame returned by Next.
func (s *Stream) Index() int {
	return s.lastRead
}

// Command returns the ffmpeg process behind the stream, or nil.
func (s *Stream) Command() *utils.SafeCommand {
	return s.cmd
}

// Close closes the underlying reader and waits for ffmpeg to exit.
func (s *Stream) Close() error {
	var errs []error
	if s.closer != nil {
		errs = append(errs, s.closer.Close())
	}
	if s.cmd != nil {
		if err := s.cmd.Wait(); err != nil && s.cmd.Stderr.Len() > 0 {
			errs = append(errs, fmt.Errorf("ffmpeg: %w: %s", err, s.cmd.Stderr.String()))
		}
	}
	return errors.Join(errs...)
}
