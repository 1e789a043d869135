// Package cache provides the bounded LRU that fronts geometry decoding.
// The cache is a warm-path accelerator, not a working set: default capacity
// is small and capacity 0 disables caching entirely.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
)

// DefaultCapacity is the default number of decoded geometries kept warm.
const DefaultCapacity = 64

// Geometry is a strict LRU of decoded district geometries keyed by district
// id. Get refreshes recency; Add inserts or refreshes; when full, the least
// recently used entry is evicted. All operations are atomic.
type Geometry struct {
	capacity int
	inner    *lru.Cache[string, orb.Geometry]
}

func NewGeometry(capacity int) (*Geometry, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("capacity must be non-negative, got %d", capacity)
	}
	g := &Geometry{capacity: capacity}
	if capacity > 0 {
		inner, err := lru.New[string, orb.Geometry](capacity)
		if err != nil {
			return nil, err
		}
		g.inner = inner
	}
	return g, nil
}

func (g *Geometry) Get(id string) (orb.Geometry, bool) {
	if g.inner == nil {
		return nil, false
	}
	return g.inner.Get(id)
}

func (g *Geometry) Add(id string, geom orb.Geometry) {
	if g.inner == nil {
		return
	}
	g.inner.Add(id, geom)
}

func (g *Geometry) Len() int {
	if g.inner == nil {
		return 0
	}
	return g.inner.Len()
}

func (g *Geometry) Capacity() int { return g.capacity }

func (g *Geometry) Purge() {
	if g.inner != nil {
		g.inner.Purge()
	}
}
