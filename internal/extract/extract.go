// Package extract turns a face crop into a fixed-length descriptor built from
// weighted color, contrast, texture and edge statistics.
package extract

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/descriptor"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrEmptyImage is returned when the face crop has no pixels.
	ErrEmptyImage = errors.New("empty face image")
	// ErrUnsupportedImage is returned for crops that are not 8-bit gray, BGR or BGRA.
	ErrUnsupportedImage = errors.New("unsupported face image type")
)

// Extractor computes descriptors. It holds no per-call state and may be
// shared between goroutines.
type Extractor struct {
	cfg    config.Extractor
	logger *zap.Logger
}

// New creates an Extractor for the given tuning.
func New(cfg config.Extractor, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger.Named("extract")}
}

// Extract returns the descriptor of a face crop. The crop is not modified.
func (e *Extractor) Extract(face gocv.Mat) (d descriptor.Descriptor, err error) {
	if face.Empty() {
		return nil, ErrEmptyImage
	}

	// OpenCV failures surface as panics through the bindings; they must not
	// escape the extractor.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("extract descriptor: %v", r)
		}
	}()

	processed, err := e.preprocess(face)
	defer processed.Close()
	if err != nil {
		return nil, err
	}

	features := e.assemble(processed)
	d = e.finalize(features)

	e.logger.Debug("descriptor extracted",
		zap.Int("raw_features", len(features)),
		zap.Int("dimension", len(d)))
	return d, nil
}

// preprocess returns a CanonicalSize square float32 BGR image scaled to roughly [0,1].
func (e *Extractor) preprocess(face gocv.Mat) (gocv.Mat, error) {
	bgr, err := toBGR(face)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bgr.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	size := e.cfg.CanonicalSize
	gocv.Resize(bgr, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	equalized := gocv.NewMat()
	defer equalized.Close()
	channels := gocv.Split(resized)
	for i := range channels {
		gocv.EqualizeHist(channels[i], &channels[i])
	}
	gocv.Merge(channels, &equalized)
	for i := range channels {
		channels[i].Close()
	}

	enhanced := gocv.NewMat()
	equalized.ConvertTo(&enhanced, gocv.MatTypeCV32FC3)

	mean, std := globalMeanStdDev(enhanced)
	if std < e.cfg.ContrastGate {
		// (p - mean) * gain + mean, applied to every channel.
		gain := e.cfg.ContrastGain
		stretched := gocv.NewMat()
		enhanced.ConvertToWithParams(&stretched, gocv.MatTypeCV32FC3, float32(gain), float32(mean*(1-gain)))
		enhanced.Close()
		enhanced = stretched
	}

	processed := gocv.NewMat()
	enhanced.ConvertToWithParams(&processed, gocv.MatTypeCV32FC3, 1.0/255.0, 0)
	enhanced.Close()

	return processed, nil
}

// toBGR returns an 8-bit 3-channel copy of img.
func toBGR(img gocv.Mat) (gocv.Mat, error) {
	out := gocv.NewMat()
	switch img.Type() {
	case gocv.MatTypeCV8UC3:
		img.CopyTo(&out)
	case gocv.MatTypeCV8UC1:
		gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	case gocv.MatTypeCV8UC4:
		gocv.CvtColor(img, &out, gocv.ColorBGRAToBGR)
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("%w: mat type %v", ErrUnsupportedImage, img.Type())
	}
	return out, nil
}

// globalMeanStdDev returns the mean and standard deviation over every value
// of a continuous multi-channel float Mat.
func globalMeanStdDev(m gocv.Mat) (float64, float64) {
	flat := m.Reshape(1, 0)
	defer flat.Close()
	return meanStdDev(flat, 0)
}

// meanStdDev returns the mean and standard deviation of channel ch of m.
func meanStdDev(m gocv.Mat, ch int) (float64, float64) {
	mean := gocv.NewMat()
	defer mean.Close()
	std := gocv.NewMat()
	defer std.Close()
	gocv.MeanStdDev(m, &mean, &std)
	return mean.GetDoubleAt(ch, 0), std.GetDoubleAt(ch, 0)
}

// assemble builds the weighted feature list in its fixed order. The result
// may be shorter or longer than the descriptor dimension.
func (e *Extractor) assemble(processed gocv.Mat) []float32 {
	w := e.cfg.Weights
	features := make([]float32, 0, descriptor.Dimension)

	// Per-channel color statistics.
	mean := gocv.NewMat()
	defer mean.Close()
	std := gocv.NewMat()
	defer std.Close()
	gocv.MeanStdDev(processed, &mean, &std)
	for c := 0; c < 3; c++ {
		features = append(features, float32(mean.GetDoubleAt(c, 0))*w.ChannelMean)
	}
	for c := 0; c < 3; c++ {
		features = append(features, float32(std.GetDoubleAt(c, 0))*w.ChannelStd)
	}

	// Contrast and brightness.
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(processed, &gray, gocv.ColorBGRToGray)
	brightness, contrast := meanStdDev(gray, 0)
	features = append(features, float32(contrast)*w.Contrast)
	features = append(features, float32(brightness)*w.Brightness)

	// Saturation.
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(processed, &hsv, gocv.ColorBGRToHSV)
	hsvChannels := gocv.Split(hsv)
	satMean, satStd := meanStdDev(hsvChannels[1], 0)
	for i := range hsvChannels {
		hsvChannels[i].Close()
	}
	features = append(features, float32(satMean)*w.Saturation)
	features = append(features, float32(satStd)*w.Saturation)

	// Grid-sampled intensity, leaving room for the texture and edge groups.
	features = e.appendSamples(features, processed)

	// Texture: Sobel gradient magnitude and direction.
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(gray, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	angle := gocv.NewMat()
	defer angle.Close()
	gocv.CartToPolar(gx, gy, &magnitude, &angle, false)
	features = append(features, float32(magnitude.Mean().Val1)*w.Gradient)
	features = append(features, float32(angle.Mean().Val1)*w.Gradient)

	// Edge density.
	gray8 := gocv.NewMat()
	defer gray8.Close()
	gray.ConvertToWithParams(&gray8, gocv.MatTypeCV8U, 255, 0)
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray8, &edges, float32(e.cfg.EdgeLow), float32(e.cfg.EdgeHigh))
	density := float64(gocv.CountNonZero(edges)) / float64(edges.Rows()*edges.Cols())
	features = append(features, float32(density)*w.EdgeDensity)

	return features
}

func (e *Extractor) appendSamples(features []float32, processed gocv.Mat) []float32 {
	limit := descriptor.Dimension - e.cfg.ReservedTail
	step := max(1, processed.Rows()/e.cfg.SampleGrid)
	weight := e.cfg.Weights.Samples

	for i := 0; i < processed.Rows(); i += step {
		for j := 0; j < processed.Cols(); j += step {
			if len(features) >= limit {
				return features
			}
			px := processed.GetVecfAt(i, j)
			features = append(features, (px[0]+px[1]+px[2])/3*weight)
		}
	}
	return features
}

// finalize pads or truncates to the descriptor dimension, min-max normalizes
// to [0,1] and applies a light horizontal smoothing pass.
func (e *Extractor) finalize(features []float32) descriptor.Descriptor {
	vec := gocv.NewMatWithSize(1, descriptor.Dimension, gocv.MatTypeCV32F)
	defer vec.Close()
	for i := 0; i < descriptor.Dimension; i++ {
		var v float32
		if i < len(features) {
			v = features[i]
		}
		vec.SetFloatAt(0, i, v)
	}

	normalized := gocv.NewMat()
	defer normalized.Close()
	gocv.Normalize(vec, &normalized, 0, 1, gocv.NormMinMax)

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	k := e.cfg.SmoothKernel
	if k%2 == 0 {
		k++
	}
	gocv.GaussianBlur(normalized, &smoothed, image.Pt(k, 1), e.cfg.SmoothSigma, 0, gocv.BorderDefault)

	d := make(descriptor.Descriptor, descriptor.Dimension)
	for i := range d {
		d[i] = clamp01(smoothed.GetFloatAt(0, i))
	}
	return d
}

func clamp01(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return min(max(v, 0), 1)
}
