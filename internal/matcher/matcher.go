// Package matcher decides which enrolled identity, if any, a probe
// descriptor belongs to.
package matcher

import (
	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"go.uber.org/zap"
)

// Result is the outcome of matching one probe against a gallery.
type Result struct {
	// Label is the accepted identity, or the unknown label.
	Label string
	// BestLabel and BestIndex identify the most similar entry even when it
	// was rejected. BestIndex is -1 for an empty gallery.
	BestLabel      string
	BestIndex      int
	BestSimilarity float64
	Threshold      float64
	Accepted       bool
	// LowConfidence marks accepted matches that cleared the threshold by
	// less than the configured margin.
	LowConfidence bool
}

// Matcher applies the tiered threshold policy. It is immutable and safe for
// concurrent use.
type Matcher struct {
	cfg    config.Matcher
	logger *zap.Logger
}

// New returns a Matcher for cfg. Tiers are expected in descending Min order,
// which config validation enforces.
func New(cfg config.Matcher, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{cfg: cfg, logger: logger.Named("matcher")}
}

// UnknownLabel returns the label given to rejected probes.
func (m *Matcher) UnknownLabel() string {
	return m.cfg.UnknownLabel
}

// Threshold returns the acceptance threshold for a best similarity: the
// threshold of the first tier whose Min it reaches, or the floor.
func (m *Matcher) Threshold(best float64) float64 {
	for _, tier := range m.cfg.Tiers {
		if best >= tier.Min {
			return tier.Threshold
		}
	}
	return m.cfg.Floor
}

// Match scores probe against every entry of g and applies the threshold
// policy to the best score. Ties keep the earliest entry.
func (m *Matcher) Match(probe descriptor.Descriptor, g *gallery.Gallery) Result {
	res := Result{Label: m.cfg.UnknownLabel, BestIndex: -1}
	if g.Len() == 0 {
		return res
	}

	for i := 0; i < g.Len(); i++ {
		sim := descriptor.CosineSimilarity(probe, g.At(i).Descriptor)
		if i == 0 || sim > res.BestSimilarity {
			res.BestIndex = i
			res.BestSimilarity = sim
		}
	}
	res.BestLabel = g.At(res.BestIndex).Label
	res.Threshold = m.Threshold(res.BestSimilarity)

	if res.BestSimilarity >= res.Threshold {
		res.Accepted = true
		res.Label = res.BestLabel
		res.LowConfidence = res.BestSimilarity < res.Threshold+m.cfg.LowConfidenceMargin
	}

	m.logger.Debug("match decision",
		zap.String("best_label", res.BestLabel),
		zap.Float64("best_similarity", res.BestSimilarity),
		zap.Float64("threshold", res.Threshold),
		zap.Bool("accepted", res.Accepted),
		zap.Bool("low_confidence", res.LowConfidence))
	return res
}
