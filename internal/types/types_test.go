package types

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/andresmejia3/facewatch/internal/matcher"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRecognition(t *testing.T) {
	rec := pipeline.Recognition{
		Region: image.Rect(10, 20, 70, 100),
		Match: matcher.Result{
			Label: "alice", BestLabel: "alice", BestSimilarity: 0.91,
			Threshold: 0.75, Accepted: true,
		},
	}

	d := FromRecognition(rec)
	assert.Equal(t, Box{X: 10, Y: 20, Width: 60, Height: 80}, d.Box)
	assert.Equal(t, rec.Region, d.Box.Rect())

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"box": {"x": 10, "y": 20, "width": 60, "height": 80},
		"label": "alice", "best_label": "alice",
		"similarity": 0.91, "threshold": 0.75,
		"accepted": true, "low_confidence": false
	}`, string(data))
}

func TestFromRecognitionsNeverNil(t *testing.T) {
	data, err := json.Marshal(FromRecognitions(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
