package detector

import (
	"path/filepath"
	"testing"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewCascadeMissingFile(t *testing.T) {
	cfg := config.Default().Detector
	cfg.CascadePath = filepath.Join(t.TempDir(), "missing.xml")

	_, err := NewCascade(cfg, nil)
	assert.Error(t, err)
}

func TestCascadeSatisfiesDetector(t *testing.T) {
	var _ Detector = (*Cascade)(nil)
}
