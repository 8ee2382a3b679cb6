package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"regrag/internal/port"
)

// Registry selects an extractor by file extension.
type Registry struct {
	byExt map[string]port.Extractor
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]port.Extractor)}
}

// Register maps extensions (with leading dot) to an extractor.
func (r *Registry) Register(ex port.Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = ex
	}
}

// For returns the extractor for a source object name.
func (r *Registry) For(name string) (port.Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	ex, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for %q", ext)
	}
	return ex, nil
}

// Supported reports whether the object name has a registered extractor.
func (r *Registry) Supported(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}
