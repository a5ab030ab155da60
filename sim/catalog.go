package sim

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/retail-sim/retail-sim/sim/agent"
	"github.com/retail-sim/retail-sim/sim/taxonomy"
)

// catalogCacheSize bounds the number of distinct shopper categories whose
// fuzzy matches are remembered.
const catalogCacheSize = 512

// Catalog indexes products by category and answers fuzzy category queries:
// a product is a candidate when its category scores above
// taxonomy.MatchThreshold against the query.
type Catalog struct {
	byCategory map[string][]*agent.Product
	categories []string
	matches    *lru.Cache[string, []string]
}

var _ agent.Catalog = (*Catalog)(nil)

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	cache, err := lru.New[string, []string](catalogCacheSize)
	if err != nil {
		panic(err)
	}
	return &Catalog{byCategory: make(map[string][]*agent.Product), matches: cache}
}

// Add indexes p. Cached matches are dropped when a new category appears.
func (c *Catalog) Add(p *agent.Product) {
	if _, ok := c.byCategory[p.Category()]; !ok {
		c.categories = append(c.categories, p.Category())
		sort.Strings(c.categories)
		c.matches.Purge()
	}
	c.byCategory[p.Category()] = append(c.byCategory[p.Category()], p)
}

// Categories returns the indexed categories, sorted.
func (c *Catalog) Categories() []string { return append([]string(nil), c.categories...) }

// ProductsFor implements agent.Catalog. Products come grouped by matching
// category in sorted order, each group in insertion order.
func (c *Catalog) ProductsFor(category string) []*agent.Product {
	cats, ok := c.matches.Get(category)
	if !ok {
		for _, candidate := range c.categories {
			if taxonomy.Score(category, candidate) > taxonomy.MatchThreshold {
				cats = append(cats, candidate)
			}
		}
		c.matches.Add(category, cats)
	}
	var out []*agent.Product
	for _, cat := range cats {
		out = append(out, c.byCategory[cat]...)
	}
	return out
}
