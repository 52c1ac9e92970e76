package http

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

const defaultRegistrySize = 1024

// registry keeps recent session records in memory. The least recently used
// record is evicted when full; terminal records remain reachable through the
// archive.
type registry struct {
	cache *lru.Cache[string, *advisor.Record]
}

func newRegistry(size int) (*registry, error) {
	if size <= 0 {
		size = defaultRegistrySize
	}
	c, err := lru.New[string, *advisor.Record](size)
	if err != nil {
		return nil, err
	}
	return &registry{cache: c}, nil
}

func (r *registry) put(rec *advisor.Record) {
	r.cache.Add(rec.SessionID, rec)
}

func (r *registry) get(id string) (*advisor.Record, bool) {
	return r.cache.Get(id)
}

func (r *registry) len() int {
	return r.cache.Len()
}
