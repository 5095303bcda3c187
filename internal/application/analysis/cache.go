package analysis

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// ResultCache remembers reports by content fingerprint and declared type.
// Analysis is a pure function of those two inputs, so a cached report only
// needs fresh identity fields and timestamps. A nil *ResultCache is a valid,
// always-missing cache.
type ResultCache struct {
	entries *lru.Cache[string, *forensics.Report]
}

// NewResultCache returns nil when size <= 0.
func NewResultCache(size int) (*ResultCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, *forensics.Report](size)
	if err != nil {
		return nil, err
	}
	return &ResultCache{entries: c}, nil
}

func cacheKey(raw []byte, declaredType string) string {
	return strconv.FormatUint(xxhash.Sum64(raw), 16) + "|" + strconv.Itoa(len(raw)) + "|" + declaredType
}

// Get returns a report for info built from a cached run, if any.
func (c *ResultCache) Get(raw []byte, info forensics.FileInfo, completedAt time.Time) (*forensics.Report, bool) {
	if c == nil {
		return nil, false
	}
	prev, ok := c.entries.Get(cacheKey(raw, info.DeclaredType))
	if !ok {
		return nil, false
	}
	return forensics.AssembleReport(
		info,
		forensics.MergeMetadata(info, prev.Metadata),
		prev.TextAnalysis, prev.ImageAnalysis, prev.SignatureCheck,
		completedAt,
	), true
}

func (c *ResultCache) Put(raw []byte, r *forensics.Report) {
	if c == nil || r == nil {
		return
	}
	c.entries.Add(cacheKey(raw, r.FileInfo.DeclaredType), r)
}

// Len reports the number of cached entries.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
