package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Key identifies a linked tool within a workspace. URL is part of the key:
// tools sharing a name but calling back to different URLs (one per agent for
// scheduling, forms and audio) are distinct remote tools.
type Key struct {
	Workspace string `json:"workspace"`
	Tool      string `json:"tool"`
	URL       string `json:"url,omitempty"`
}

// Cache maps tool names to engine handles. Implementations must be safe for
// concurrent use; last writer wins.
type Cache interface {
	Get(ctx context.Context, key Key) (handle string, ok bool, err error)
	Set(ctx context.Context, key Key, handle string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[Key]string
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[Key]string)}
}

func (c *MemoryCache) Get(_ context.Context, key Key) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.data[key]
	return h, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key Key, handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = handle
	return nil
}

// Len reports the number of cached handles.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

type snapshotEntry struct {
	Key
	Handle string `json:"handle"`
}

// SaveSnapshot writes the cache to a JSON file so a later CLI run can reuse
// the handles.
func (c *MemoryCache) SaveSnapshot(path string) error {
	c.mu.RLock()
	entries := make([]snapshotEntry, 0, len(c.data))
	for k, h := range c.data {
		entries = append(entries, snapshotEntry{Key: k, Handle: h})
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Workspace != entries[j].Workspace {
			return entries[i].Workspace < entries[j].Workspace
		}
		if entries[i].Tool != entries[j].Tool {
			return entries[i].Tool < entries[j].Tool
		}
		return entries[i].URL < entries[j].URL
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	return nil
}

// LoadSnapshot restores a MemoryCache from a file written by SaveSnapshot.
func LoadSnapshot(path string) (*MemoryCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}
	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("snapshot unmarshal: %w", err)
	}
	c := NewMemoryCache()
	for _, e := range entries {
		c.data[e.Key] = e.Handle
	}
	return c, nil
}
