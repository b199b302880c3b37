package tagging

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relaydesk/backend/internal/types"
)

// Catalog is the per-tenant registry of skill tags
type Catalog struct {
	tenantID string
	tags     map[string]types.Tag // tagID -> tag
	mu       sync.RWMutex
}

// NewCatalog creates an empty tag catalog for a tenant
func NewCatalog(tenantID string) *Catalog {
	return &Catalog{
		tenantID: tenantID,
		tags:     make(map[string]types.Tag),
	}
}

// Put adds or replaces a tag in the catalog
func (c *Catalog) Put(tag types.Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("tag: missing id")
	}
	if tag.Name == "" {
		return fmt.Errorf("tag %s: missing name", tag.ID)
	}
	if tag.PriorityWeight <= 0 {
		return fmt.Errorf("tag %s: priority weight must be positive, got %g", tag.ID, tag.PriorityWeight)
	}
	tag.TenantID = c.tenantID

	c.mu.Lock()
	c.tags[tag.ID] = tag
	c.mu.Unlock()
	return nil
}

// Remove deletes a tag; reports whether it existed
func (c *Catalog) Remove(tagID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.tags[tagID]
	delete(c.tags, tagID)
	return ok
}

// Get returns a tag by ID
func (c *Catalog) Get(tagID string) (types.Tag, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tag, ok := c.tags[tagID]
	return tag, ok
}

// List returns all tags sorted by ID for stable output
func (c *Catalog) List() []types.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tags := make([]types.Tag, 0, len(c.tags))
	for _, tag := range c.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].ID < tags[j].ID })
	return tags
}

// MaxPriorityWeight returns the highest priority weight among the given tag IDs
func (c *Catalog) MaxPriorityWeight(detected []types.DetectedTag) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	max := 0.0
	for _, d := range detected {
		if tag, ok := c.tags[d.TagID]; ok && tag.PriorityWeight > max {
			max = tag.PriorityWeight
		}
	}
	return max
}

// Count returns the number of tags in the catalog
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tags)
}
