package reconcile

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter excludes source paths matching any of its glob patterns.
// A nil Filter excludes nothing.
type Filter struct {
	patterns []string
}

func NewFilter(patterns []string) (*Filter, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Filter{patterns: patterns}, nil
}

func (f *Filter) Excluded(path string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.patterns {
		if doublestar.MatchUnvalidated(p, path) {
			return true
		}
	}
	return false
}
