package resources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// CatalogProvider owns the lifecycle of a resource catalog.
type CatalogProvider interface {
	// Load returns the catalog, reading it on first use.
	Load(ctx context.Context) (*Catalog, error)
	// Get returns the category-specific entries for a role at a tier.
	Get(ctx context.Context, role, category string, tier Tier) ([]Entry, error)
	// Clear drops the cached catalog so the next Load reads it again.
	// It must not run concurrently with readers.
	Clear()
}

// FileProvider loads a YAML catalog from disk once and caches it.
type FileProvider struct {
	path    string
	mu      sync.Mutex
	catalog *Catalog
}

// NewFileProvider creates a provider for the catalog at path. Nothing is
// read until the first Load.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Load(_ context.Context) (*Catalog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.catalog != nil {
		return p.catalog, nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reading resource catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}

	slog.Info("resource catalog loaded",
		"path", p.path,
		"categories", len(c.TopicKeywords),
		"roles", len(c.Roles),
	)
	p.catalog = c
	return c, nil
}

func (p *FileProvider) Get(ctx context.Context, role, category string, tier Tier) ([]Entry, error) {
	c, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return c.Curated(role, category, tier), nil
}

func (p *FileProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalog = nil
}

// StaticProvider serves an in-memory catalog, typically a test fixture.
type StaticProvider struct {
	catalog *Catalog
}

// NewStaticProvider wraps c. The catalog must not be modified afterwards.
func NewStaticProvider(c *Catalog) *StaticProvider {
	c.prepare()
	return &StaticProvider{catalog: c}
}

func (p *StaticProvider) Load(_ context.Context) (*Catalog, error) {
	return p.catalog, nil
}

func (p *StaticProvider) Get(_ context.Context, role, category string, tier Tier) ([]Entry, error) {
	return p.catalog.Curated(role, category, tier), nil
}

// Clear is a no-op; a static catalog has nothing to reload.
func (p *StaticProvider) Clear() {}
