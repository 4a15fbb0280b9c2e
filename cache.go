package marketsdk

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// QueryGroup names a family of cached read queries that share invalidation
// behavior.
type QueryGroup string

const (
	QueryGroupOffers                   QueryGroup = "offers"
	QueryGroupOffersCount              QueryGroup = "offersCount"
	QueryGroupListings                 QueryGroup = "listings"
	QueryGroupListingsCount            QueryGroup = "listingsCount"
	QueryGroupHighestOffers            QueryGroup = "highestOffers"
	QueryGroupLowestListings           QueryGroup = "lowestListings"
	QueryGroupBalances                 QueryGroup = "balances"
	QueryGroupUserBalances             QueryGroup = "userBalances"
	QueryGroupCollectionBalanceDetails QueryGroup = "collectionBalanceDetails"
	QueryGroupCurrencies               QueryGroup = "currencies"
)

// QueryKey identifies one cache entry within a group.
type QueryKey struct {
	Group QueryGroup
	Parts []string
}

func (k QueryKey) String() string {
	if len(k.Parts) == 0 {
		return string(k.Group)
	}
	return string(k.Group) + "/" + strings.Join(k.Parts, "/")
}

// QueryCache holds read-query results keyed by group and parameters, with
// LRU eviction. Mutations after write actions go through UpdateIfPresent
// and the invalidation helpers; the cache never creates entries on its own.
type QueryCache struct {
	mu     sync.Mutex
	lru    *lru.Cache
	timers []*time.Timer
}

func NewQueryCache(size int) (*QueryCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &QueryCache{lru: c}, nil
}

func (c *QueryCache) Get(key QueryKey) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key.String())
}

func (c *QueryCache) Set(key QueryKey, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key.String(), value)
}

// UpdateIfPresent applies fn to an existing entry. A missing key is a
// no-op: optimistic patches never materialize data that was never fetched.
// Returning nil from fn removes the entry.
func (c *QueryCache) UpdateIfPresent(key QueryKey, fn func(old interface{}) interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	old, ok := c.lru.Peek(k)
	if !ok {
		return
	}
	updated := fn(old)
	if updated == nil {
		c.lru.Remove(k)
		return
	}
	c.lru.Add(k, updated)
}

// UpdateGroupIfPresent applies fn to every cached entry of a group.
// Returning nil removes that entry.
func (c *QueryCache) UpdateGroupIfPresent(group QueryGroup, fn func(key string, old interface{}) interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := string(group) + "/"
	for _, k := range c.lru.Keys() {
		ks := k.(string)
		if ks != string(group) && !strings.HasPrefix(ks, prefix) {
			continue
		}
		old, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		updated := fn(ks, old)
		if updated == nil {
			c.lru.Remove(k)
			continue
		}
		c.lru.Add(k, updated)
	}
}

// InvalidateGroup drops every cached entry of a group immediately.
func (c *QueryCache) InvalidateGroup(group QueryGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateGroupLocked(group)
}

func (c *QueryCache) invalidateGroupLocked(group QueryGroup) {
	prefix := string(group) + "/"
	for _, k := range c.lru.Keys() {
		ks := k.(string)
		if ks == string(group) || strings.HasPrefix(ks, prefix) {
			c.lru.Remove(k)
		}
	}
}

// InvalidateGroupAfter drops a group after a delay, covering backends that
// re-aggregate views asynchronously after a write.
func (c *QueryCache) InvalidateGroupAfter(group QueryGroup, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.InvalidateGroup(group)
		c.removeTimer(t)
	})
	c.timers = append(c.timers, t)
}

// removeTimer prunes a fired timer so long-lived clients do not accumulate
// dead timers between purges.
func (c *QueryCache) removeTimer(t *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.timers {
		if existing == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

// Purge empties the cache and stops pending delayed invalidations.
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.lru.Purge()
}
