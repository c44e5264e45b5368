// Package gallery holds the enrolled identities and builds them from
// reference images.
package gallery

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/facewatch/internal/descriptor"
)

// ErrInvalidEntry is returned by New for entries without a descriptor.
var ErrInvalidEntry = errors.New("gallery entry has no descriptor")

// Entry is one enrolled identity.
type Entry struct {
	Label      string
	Descriptor descriptor.Descriptor
	// Source is the image the entry was built from, for diagnostics only.
	Source string
}

// Gallery is an ordered, read-only set of entries. It is safe to share
// between goroutines once built. A nil *Gallery behaves as an empty one.
type Gallery struct {
	entries []Entry
}

// New returns a gallery holding copies of entries in the given order.
func New(entries ...Entry) (*Gallery, error) {
	out := make([]Entry, 0, len(entries))
	for i, e := range entries {
		if len(e.Descriptor) == 0 {
			return nil, fmt.Errorf("entry %d (%q): %w", i, e.Label, ErrInvalidEntry)
		}
		e.Descriptor = e.Descriptor.Clone()
		out = append(out, e)
	}
	return &Gallery{entries: out}, nil
}

// Len returns the number of entries.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// At returns the i-th entry. The descriptor must not be modified.
func (g *Gallery) At(i int) Entry {
	return g.entries[i]
}

// Entries returns a copy of the entry list.
func (g *Gallery) Entries() []Entry {
	if g == nil {
		return nil
	}
	out := make([]Entry, len(g.entries))
	copy(out, g.entries)
	return out
}

// Labels returns the label of every entry in gallery order.
func (g *Gallery) Labels() []string {
	if g == nil {
		return nil
	}
	labels := make([]string, len(g.entries))
	for i, e := range g.entries {
		labels[i] = e.Label
	}
	return labels
}
