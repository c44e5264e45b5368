package gallery

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Source is one enrollment image and the label it enrolls.
type Source struct {
	Path  string
	Label string
}

// ScanDir lists the regular files in dir whose extension is in extensions
// (case-insensitive). The label of each source is its file name without the
// extension. Sources are sorted by path.
func ScanDir(dir string, extensions []string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan enrollment directory: %w", err)
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	var sources []Source
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !allowed[strings.ToLower(ext)] {
			continue
		}
		label := strings.TrimSuffix(name, ext)
		if label == "" {
			continue
		}
		sources = append(sources, Source{Path: filepath.Join(dir, name), Label: label})
	}

	slices.SortFunc(sources, func(a, b Source) int { return strings.Compare(a.Path, b.Path) })
	return sources, nil
}
