package matcher

import (
	"math"
	"testing"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMatcher() *Matcher {
	return New(config.Default().Matcher, nil)
}

// unitAt returns a 2-D unit vector whose cosine similarity with (1, 0) is s.
func unitAt(s float64) descriptor.Descriptor {
	return descriptor.Descriptor{float32(s), float32(math.Sqrt(1 - s*s))}
}

var reference = descriptor.Descriptor{1, 0}

func galleryOf(t *testing.T, entries ...gallery.Entry) *gallery.Gallery {
	t.Helper()
	g, err := gallery.New(entries...)
	require.NoError(t, err)
	return g
}

func TestThresholdTiers(t *testing.T) {
	m := newMatcher()

	tests := []struct {
		best float64
		want float64
	}{
		{1.0, 0.90},
		{0.95, 0.90},
		{0.9499, 0.75},
		{0.85, 0.75},
		{0.8499, 0.65},
		{0.75, 0.65},
		{0.7499, 0.60},
		{0.0, 0.60},
		{-1.0, 0.60},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Threshold(tt.best), "best=%v", tt.best)
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	m := newMatcher()

	for _, g := range []*gallery.Gallery{nil, galleryOf(t)} {
		res := m.Match(reference, g)
		assert.Equal(t, "Unknown", res.Label)
		assert.False(t, res.Accepted)
		assert.Equal(t, -1, res.BestIndex)
	}
}

func TestMatchDecisions(t *testing.T) {
	m := newMatcher()
	g := galleryOf(t, gallery.Entry{Label: "alice", Descriptor: reference})

	tests := []struct {
		name          string
		similarity    float64
		label         string
		threshold     float64
		lowConfidence bool
	}{
		{"top tier", 0.97, "alice", 0.90, false},
		{"second tier confident", 0.92, "alice", 0.75, false},
		{"second tier lower band", 0.86, "alice", 0.75, false},
		{"third tier", 0.77, "alice", 0.65, false},
		{"floor accepted low confidence", 0.62, "alice", 0.60, true},
		{"floor rejected", 0.55, "Unknown", 0.60, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Match(unitAt(tt.similarity), g)
			assert.Equal(t, tt.label, res.Label)
			assert.Equal(t, "alice", res.BestLabel)
			assert.InDelta(t, tt.similarity, res.BestSimilarity, 1e-6)
			assert.Equal(t, tt.threshold, res.Threshold)
			assert.Equal(t, tt.label != "Unknown", res.Accepted)
			assert.Equal(t, tt.lowConfidence, res.LowConfidence)
		})
	}
}

func TestLowConfidenceMargin(t *testing.T) {
	cfg := config.Default().Matcher
	cfg.Tiers = []config.Tier{{Min: 0.85, Threshold: 0.75}}
	cfg.Floor = 0.75
	m := New(cfg, nil)
	g := galleryOf(t, gallery.Entry{Label: "alice", Descriptor: reference})

	res := m.Match(unitAt(0.77), g)
	assert.True(t, res.Accepted)
	assert.True(t, res.LowConfidence)

	res = m.Match(unitAt(0.92), g)
	assert.True(t, res.Accepted)
	assert.False(t, res.LowConfidence)
}

func TestMatchPicksBestEntry(t *testing.T) {
	m := newMatcher()
	g := galleryOf(t,
		gallery.Entry{Label: "alice", Descriptor: unitAt(0.5)},
		gallery.Entry{Label: "bob", Descriptor: reference},
		gallery.Entry{Label: "carol", Descriptor: unitAt(0.8)},
	)

	res := m.Match(unitAt(0.99), g)
	assert.Equal(t, "bob", res.Label)
	assert.Equal(t, 1, res.BestIndex)
}

func TestMatchTieKeepsFirstEntry(t *testing.T) {
	m := newMatcher()
	g := galleryOf(t,
		gallery.Entry{Label: "carol", Descriptor: unitAt(0.3)},
		gallery.Entry{Label: "alice", Descriptor: reference, Source: "alice-1.jpg"},
		gallery.Entry{Label: "alice", Descriptor: reference, Source: "alice-2.jpg"},
	)

	res := m.Match(reference, g)
	assert.Equal(t, "alice", res.Label)
	assert.Equal(t, 1, res.BestIndex)
}

func TestMatchDegenerateProbe(t *testing.T) {
	m := newMatcher()
	g := galleryOf(t, gallery.Entry{Label: "alice", Descriptor: reference})

	res := m.Match(descriptor.Descriptor{0, 0}, g)
	assert.Equal(t, "Unknown", res.Label)
	assert.Zero(t, res.BestSimilarity)
	assert.Equal(t, 0.60, res.Threshold)
}
