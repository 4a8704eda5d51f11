package resources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

const (
	minResources = 2
	maxResources = 3
)

// ShortfallWarning reports that fewer resources than wanted were found.
type ShortfallWarning struct {
	Want int
	Got  int
}

func (w ShortfallWarning) Warning() string {
	return fmt.Sprintf("resource shortfall: found %d of %d", w.Got, w.Want)
}

// Resolution is the result of resolving curated references for a module.
type Resolution struct {
	References []learning.Reference
	Category   string // matched topic category, empty when none matched
	Warning    *ShortfallWarning
}

// Resolver picks curated references for a module. It never uses references
// proposed by a model.
type Resolver struct {
	catalog CatalogProvider
}

// NewResolver creates a resolver backed by p.
func NewResolver(p CatalogProvider) *Resolver {
	return &Resolver{catalog: p}
}

// Resolve returns up to three curated references for a module, most
// specific first. It fails only if the catalog cannot be loaded.
//
// Lookup stops as soon as two references are collected. With a matched
// topic category it takes the role's resources for that category, then the
// shared section resources at the tier, then the role's core resources.
// General resources for the tier come last, and are the only source when
// no category matched.
func (r *Resolver) Resolve(ctx context.Context, role, moduleName string, tier Tier) (Resolution, error) {
	c, err := r.catalog.Load(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolving resources: %w", err)
	}

	category, matched := c.MatchCategory(moduleName)
	col := newCollector()

	if matched {
		curated, err := r.catalog.Get(ctx, role, category, tier)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolving resources: %w", err)
		}
		col.addUntil(curated, minResources)
		// Core resources only apply to recognized topics.
		if rr, ok := c.Roles[role]; ok {
			col.addUntil(rr.Core, minResources)
		}
	}
	col.addUntil(c.General(tier), minResources)

	res := Resolution{References: col.refs, Category: category}
	if len(res.References) < minResources {
		res.Warning = &ShortfallWarning{Want: minResources, Got: len(res.References)}
		slog.Warn("resource shortfall",
			"role", role,
			"module", moduleName,
			"tier", tier.Key(),
			"found", len(res.References),
		)
	}
	slog.Debug("resources resolved",
		"module", moduleName,
		"category", category,
		"tier", tier.Key(),
		"count", len(res.References),
	)
	return res, nil
}

// collector accumulates references, deduplicated by URL and capped at
// maxResources.
type collector struct {
	refs []learning.Reference
	seen map[string]bool
}

func newCollector() *collector {
	return &collector{seen: make(map[string]bool)}
}

func (c *collector) addUntil(entries []Entry, target int) {
	for _, e := range entries {
		if len(c.refs) >= target || len(c.refs) >= maxResources {
			return
		}
		ref := e.Reference()
		if c.seen[ref.URL] {
			continue
		}
		c.seen[ref.URL] = true
		c.refs = append(c.refs, ref)
	}
}
