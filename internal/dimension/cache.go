// Package dimension resolves natural keys to store-generated surrogate ids.
//
// Leaf dimensions (category, brand, city, state, country, month) deduplicate
// by natural key through Resolver. Composite dimensions are inserted by the
// loader and remembered in a Cache for the stages that reference them.
package dimension

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound is matched by every *KeyNotFoundError.
	ErrKeyNotFound = errors.New("dimension: key not found")
	// ErrEmptyKey rejects a blank natural key value.
	ErrEmptyKey = errors.New("dimension: empty natural key")
)

// KeyNotFoundError reports a natural key that was never resolved in this
// run, e.g. a sales row naming a customer absent from the customer source.
type KeyNotFoundError struct {
	Entity string
	Key    string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("dimension: %s key not found: %s", e.Entity, e.Key)
}

func (e *KeyNotFoundError) Is(target error) bool { return target == ErrKeyNotFound }

// NormalizeKey returns the canonical form of a natural key value: surrounding
// whitespace removed, case preserved.
func NormalizeKey(v string) string {
	return strings.TrimSpace(v)
}

// Cache maps natural keys of one entity to surrogate ids for a single run.
// A miss means "not resolved in this run", never "absent from the store".
type Cache[K comparable] struct {
	entity string
	ids    map[K]int64

	hits   int
	misses int
}

func NewCache[K comparable](entity string) *Cache[K] {
	return &Cache[K]{entity: entity, ids: make(map[K]int64)}
}

// Put records id for k, replacing any earlier id.
func (c *Cache[K]) Put(k K, id int64) { c.ids[k] = id }

// Get returns the id recorded for k.
func (c *Cache[K]) Get(k K) (int64, bool) {
	id, ok := c.ids[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return id, ok
}

// Require is Get that turns a miss into a *KeyNotFoundError.
func (c *Cache[K]) Require(k K) (int64, error) {
	id, ok := c.Get(k)
	if !ok {
		return 0, &KeyNotFoundError{Entity: c.entity, Key: fmt.Sprintf("%v", k)}
	}
	return id, nil
}

func (c *Cache[K]) Len() int { return len(c.ids) }

func (c *Cache[K]) Entity() string { return c.entity }

// Stats returns lookup hits and misses so far.
func (c *Cache[K]) Stats() (hits, misses int) { return c.hits, c.misses }
