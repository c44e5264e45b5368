package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Region selection policies for enrollment images.
const (
	RegionFirst       = "first"
	RegionLargest     = "largest"
	RegionRejectMulti = "reject-multi"
)

// Duplicate label policies for the gallery builder.
const (
	DuplicatesAllow  = "allow"
	DuplicatesReject = "reject"
)

// Tuning holds every heuristic constant of the identification pipeline.
type Tuning struct {
	Extractor  Extractor  `yaml:"extractor"`
	Matcher    Matcher    `yaml:"matcher"`
	Detector   Detector   `yaml:"detector"`
	Enrollment Enrollment `yaml:"enrollment"`
}

// Extractor configures preprocessing and the weighted feature assembly.
type Extractor struct {
	CanonicalSize int     `yaml:"canonical_size" validate:"gte=16"`
	ContrastGate  float64 `yaml:"contrast_gate" validate:"gte=0"`
	ContrastGain  float64 `yaml:"contrast_gain" validate:"gt=0"`
	SampleGrid    int     `yaml:"sample_grid" validate:"gte=1"`
	ReservedTail  int     `yaml:"reserved_tail" validate:"gte=0,lt=128"`
	EdgeLow       float64 `yaml:"edge_low" validate:"gte=0"`
	EdgeHigh      float64 `yaml:"edge_high" validate:"gtfield=EdgeLow"`
	SmoothKernel  int     `yaml:"smooth_kernel" validate:"gte=1"`
	SmoothSigma   float64 `yaml:"smooth_sigma" validate:"gte=0"`
	Weights       Weights `yaml:"weights"`
}

// Weights multiply each feature group before it is stored.
type Weights struct {
	ChannelMean float32 `yaml:"channel_mean" validate:"gt=0"`
	ChannelStd  float32 `yaml:"channel_std" validate:"gt=0"`
	Contrast    float32 `yaml:"contrast" validate:"gt=0"`
	Brightness  float32 `yaml:"brightness" validate:"gt=0"`
	Saturation  float32 `yaml:"saturation" validate:"gt=0"`
	Samples     float32 `yaml:"samples" validate:"gt=0"`
	Gradient    float32 `yaml:"gradient" validate:"gt=0"`
	EdgeDensity float32 `yaml:"edge_density" validate:"gt=0"`
}

// Tier maps a best-similarity band to the acceptance threshold applied in it.
type Tier struct {
	Min       float64 `yaml:"min" validate:"gte=-1,lte=1"`
	Threshold float64 `yaml:"threshold" validate:"gte=-1,lte=1"`
}

// Matcher configures the adaptive threshold policy.
type Matcher struct {
	Tiers               []Tier  `yaml:"tiers" validate:"tiers_desc,dive"`
	Floor               float64 `yaml:"floor" validate:"gte=-1,lte=1"`
	LowConfidenceMargin float64 `yaml:"low_confidence_margin" validate:"gte=0"`
	UnknownLabel        string  `yaml:"unknown_label" validate:"required"`
}

// Detector configures the Haar cascade face locator.
type Detector struct {
	CascadePath  string  `yaml:"cascade_path" validate:"required"`
	ScaleFactor  float64 `yaml:"scale_factor" validate:"gt=1"`
	MinNeighbors int     `yaml:"min_neighbors" validate:"gte=0"`
	MinSize      int     `yaml:"min_size" validate:"gte=1"`
}

// Enrollment configures how the gallery is built from reference images.
type Enrollment struct {
	RegionPolicy    string   `yaml:"region_policy" validate:"oneof=first largest reject-multi"`
	DuplicateLabels string   `yaml:"duplicate_labels" validate:"oneof=allow reject"`
	Extensions      []string `yaml:"extensions" validate:"min=1"`
	Workers         int      `yaml:"workers" validate:"gte=1"`
}

// Default returns the tuned constants of the recognizer.
func Default() *Tuning {
	return &Tuning{
		Extractor: Extractor{
			CanonicalSize: 112,
			ContrastGate:  50.0,
			ContrastGain:  1.3,
			SampleGrid:    16,
			ReservedTail:  10,
			EdgeLow:       30,
			EdgeHigh:      120,
			SmoothKernel:  3,
			SmoothSigma:   0.5,
			Weights: Weights{
				ChannelMean: 1.2,
				ChannelStd:  1.0,
				Contrast:    1.5,
				Brightness:  1.5,
				Saturation:  1.3,
				Samples:     1.1,
				Gradient:    1.4,
				EdgeDensity: 1.2,
			},
		},
		Matcher: Matcher{
			Tiers: []Tier{
				{Min: 0.95, Threshold: 0.90},
				{Min: 0.85, Threshold: 0.75},
				{Min: 0.75, Threshold: 0.65},
			},
			Floor:               0.60,
			LowConfidenceMargin: 0.05,
			UnknownLabel:        "Unknown",
		},
		Detector: Detector{
			CascadePath:  "models/haarcascade_frontalface_default.xml",
			ScaleFactor:  1.1,
			MinNeighbors: 3,
			MinSize:      30,
		},
		Enrollment: Enrollment{
			RegionPolicy:    RegionFirst,
			DuplicateLabels: DuplicatesAllow,
			Extensions:      []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"},
			Workers:         1,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// the FACEWATCH_* environment overrides, validated.
func Load(path string) (*Tuning, error) {
	t := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tuning file: %w", err)
		}
		if err := yaml.Unmarshal(data, t); err != nil {
			return nil, fmt.Errorf("parse tuning file %s: %w", path, err)
		}
	}

	t.applyEnv()

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tuning) applyEnv() {
	if v := os.Getenv("FACEWATCH_CASCADE"); v != "" {
		t.Detector.CascadePath = v
	}
	if v := os.Getenv("FACEWATCH_REGION_POLICY"); v != "" {
		t.Enrollment.RegionPolicy = strings.ToLower(v)
	}
	t.Enrollment.Workers = envInt("FACEWATCH_WORKERS", t.Enrollment.Workers)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// Validate checks every field against its constraints.
func (t *Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid tuning: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid tuning: %w", err)
	}
	return nil
}
