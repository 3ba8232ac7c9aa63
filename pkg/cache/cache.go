// Package cache provides artifact caching for pipeline stages.
//
// Two backends are provided: a file-based cache for CLI usage and a
// Redis-backed cache for shared deployments, plus a no-op NullCache for
// disabling caching entirely. Keys are derived from content hashes of
// the stage inputs, so a cache hit is only possible when re-running a
// stage with byte-identical inputs.
package cache

import (
	"context"
	"time"
)

// Cache is the storage interface for cached stage artifacts.
type Cache interface {
	// Get retrieves a value. The bool reports whether the key was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL. A zero TTL means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Cache TTLs per artifact kind. Stage outputs are deterministic
// functions of their inputs, so the TTLs bound storage growth rather
// than staleness.
const (
	// RasterTTL applies to per-layer rasters and merged rasters.
	RasterTTL = 7 * 24 * time.Hour

	// TranslationTTL applies to translated rasters and final assemblies.
	TranslationTTL = 7 * 24 * time.Hour

	// DiffTTL applies to change-analysis results.
	DiffTTL = 24 * time.Hour
)

// LayerKeyOpts are the inputs that determine a per-layer raster.
type LayerKeyOpts struct {
	SourceHash string // content hash of the vector source
	Attribute  string
	Prefix     string
	Rank       int
	Include    []string
	Exclude    []string
	FixedValue string
}

// MergeKeyOpts are the inputs that determine a merged raster.
type MergeKeyOpts struct {
	// LayerHashes holds the per-layer raster hashes in rank order.
	LayerHashes []string
}

// TranslateKeyOpts are the inputs that determine a translated raster.
type TranslateKeyOpts struct {
	LookupHash string // content hash of the lookup table
	LegendHash string // content hash of the code legend
}

// DiffKeyOpts are the inputs that determine a change analysis.
type DiffKeyOpts struct {
	PreviousHash string // content hash of the previous final raster
}

// Keyer generates cache keys for the pipeline's artifact kinds. The
// grid hash enters every key so that artifacts built against different
// grid definitions never collide.
type Keyer interface {
	// LayerKey keys a single rasterized layer.
	LayerKey(gridHash, layer string, opts LayerKeyOpts) string

	// LegendKey keys the code legend built from the full layer set.
	LegendKey(gridHash string, opts MergeKeyOpts) string

	// MergeKey keys the priority-merged raster.
	MergeKey(gridHash string, opts MergeKeyOpts) string

	// TranslateKey keys a translated raster.
	TranslateKey(rasterHash string, opts TranslateKeyOpts) string

	// DiffKey keys a change analysis between two rasters.
	DiffKey(rasterHash string, opts DiffKeyOpts) string
}

// DefaultKeyer generates hash-based keys with kind prefixes.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// LayerKey generates a key for a rasterized layer.
func (k *DefaultKeyer) LayerKey(gridHash, layer string, opts LayerKeyOpts) string {
	return hashKey("layer", gridHash, layer, opts)
}

// LegendKey generates a key for the code legend.
func (k *DefaultKeyer) LegendKey(gridHash string, opts MergeKeyOpts) string {
	return hashKey("legend", gridHash, opts)
}

// MergeKey generates a key for the merged raster.
func (k *DefaultKeyer) MergeKey(gridHash string, opts MergeKeyOpts) string {
	return hashKey("merge", gridHash, opts)
}

// TranslateKey generates a key for a translated raster.
func (k *DefaultKeyer) TranslateKey(rasterHash string, opts TranslateKeyOpts) string {
	return hashKey("translate", rasterHash, opts)
}

// DiffKey generates a key for a change analysis.
func (k *DefaultKeyer) DiffKey(rasterHash string, opts DiffKeyOpts) string {
	return hashKey("diff", rasterHash, opts)
}

// Ensure DefaultKeyer implements Keyer.
var _ Keyer = (*DefaultKeyer)(nil)
