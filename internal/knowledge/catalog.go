package knowledge

import (
	"sync/atomic"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

// Catalog serves framework documentation links from a corpus that can be
// replaced while requests are in flight.
type Catalog struct {
	cur atomic.Pointer[Corpus]
}

// NewCatalog creates a catalog over c.
func NewCatalog(c *Corpus) *Catalog {
	cat := &Catalog{}
	cat.cur.Store(c)
	return cat
}

// Swap replaces the served corpus. Nil is ignored.
func (c *Catalog) Swap(next *Corpus) {
	if next != nil {
		c.cur.Store(next)
	}
}

// Corpus returns the corpus currently served.
func (c *Catalog) Corpus() *Corpus {
	return c.cur.Load()
}

// Sources returns the documentation links of a framework.
func (c *Catalog) Sources(name string) []advisor.Source {
	cur := c.cur.Load()
	if cur == nil {
		return nil
	}
	return cur.Sources(name)
}
