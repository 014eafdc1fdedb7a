package mapserver

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient is an in-process map server used when no GeoServer is configured and in tests.
type MemoryClient struct {
	mu     sync.Mutex
	stores map[string]*Store
	layers map[string]string
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		stores: map[string]*Store{},
		layers: map[string]string{},
	}
}

func (c *MemoryClient) GetStore(_ context.Context, workspace, name string) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	store, ok := c.stores[workspace+":"+name]
	if !ok {
		return nil, fmt.Errorf("datastore %s:%s: %w", workspace, name, ErrNotFound)
	}

	clone := *store

	return &clone, nil
}

func (c *MemoryClient) CreateDatastore(_ context.Context, workspace, name string, _ map[string]string) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := workspace + ":" + name
	if _, ok := c.stores[key]; ok {
		return nil, &AlreadyExistsError{Name: name, Store: workspace}
	}

	store := &Store{Name: name, Workspace: workspace, Type: StoreTypeDatastore}
	c.stores[key] = store

	clone := *store

	return &clone, nil
}

func (c *MemoryClient) PublishFeatureType(_ context.Context, store *Store, name, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := store.Workspace + ":" + name
	if _, ok := c.layers[key]; ok {
		return &AlreadyExistsError{Name: name, Store: store.Name}
	}

	c.layers[key] = store.Name

	return nil
}

func (c *MemoryClient) PublishCoverage(_ context.Context, workspace, name, _, _ string, overwrite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := workspace + ":" + name
	if _, ok := c.layers[key]; ok && !overwrite {
		return &AlreadyExistsError{Name: name, Store: name}
	}

	c.stores[key] = &Store{Name: name, Workspace: workspace, Type: StoreTypeCoverage}
	c.layers[key] = name

	return nil
}

func (c *MemoryClient) DeleteLayer(_ context.Context, workspace, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.layers, workspace+":"+name)

	return nil
}

// HasLayer reports whether workspace:name is published.
func (c *MemoryClient) HasLayer(workspace, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.layers[workspace+":"+name]

	return ok
}

// Layers returns the number of published layers.
func (c *MemoryClient) Layers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.layers)
}
