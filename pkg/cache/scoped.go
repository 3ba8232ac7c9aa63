package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// Useful when several projects share one Redis instance and their
// artifacts must not shadow each other.
//
// Example usage:
//
//	// Per-project keys
//	projKeyer := NewScopedKeyer(NewDefaultKeyer(), "nemunas:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// LayerKey generates a prefixed key for a rasterized layer.
func (k *ScopedKeyer) LayerKey(gridHash, layer string, opts LayerKeyOpts) string {
	return k.prefix + k.inner.LayerKey(gridHash, layer, opts)
}

// LegendKey generates a prefixed key for the code legend.
func (k *ScopedKeyer) LegendKey(gridHash string, opts MergeKeyOpts) string {
	return k.prefix + k.inner.LegendKey(gridHash, opts)
}

// MergeKey generates a prefixed key for the merged raster.
func (k *ScopedKeyer) MergeKey(gridHash string, opts MergeKeyOpts) string {
	return k.prefix + k.inner.MergeKey(gridHash, opts)
}

// TranslateKey generates a prefixed key for a translated raster.
func (k *ScopedKeyer) TranslateKey(rasterHash string, opts TranslateKeyOpts) string {
	return k.prefix + k.inner.TranslateKey(rasterHash, opts)
}

// DiffKey generates a prefixed key for a change analysis.
func (k *ScopedKeyer) DiffKey(rasterHash string, opts DiffKeyOpts) string {
	return k.prefix + k.inner.DiffKey(rasterHash, opts)
}
