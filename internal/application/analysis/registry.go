package analysis

import (
	"sort"
	"sync"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// Registry maps declared media types to metadata extractors. Types without
// an entry resolve to the fallback extractor.
type Registry struct {
	mu       sync.RWMutex
	byType   map[string]forensics.MetadataExtractor
	fallback forensics.MetadataExtractor
}

func NewRegistry(fallback forensics.MetadataExtractor) *Registry {
	return &Registry{
		byType:   make(map[string]forensics.MetadataExtractor),
		fallback: fallback,
	}
}

// Register binds ex to each of the given media types. Matching is exact.
func (r *Registry) Register(ex forensics.MetadataExtractor, types ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.byType[t] = ex
	}
}

// Lookup returns the extractor for declaredType, or the fallback.
func (r *Registry) Lookup(declaredType string) forensics.MetadataExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ex, ok := r.byType[declaredType]; ok {
		return ex
	}
	return r.fallback
}

// Types lists registered media types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
