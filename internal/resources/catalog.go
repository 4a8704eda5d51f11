// Package resources selects curated learning references for generated
// modules and screens model-proposed references against a source policy.
package resources

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

// NoURL marks a curated citation that has no link, such as a paid book.
const NoURL = "#"

const defaultGeneralSection = "mathematics"

// Tier is a coarse experience bucket used to pick resource difficulty.
type Tier int

const (
	TierEntry Tier = iota + 1
	TierIntermediate
	TierAdvanced
)

// Key returns the catalog key for the tier ("tier_1".."tier_3").
func (t Tier) Key() string { return fmt.Sprintf("tier_%d", t) }

func (t Tier) String() string {
	switch t {
	case TierEntry:
		return "entry"
	case TierIntermediate:
		return "intermediate"
	case TierAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// Entry is one curated resource.
type Entry struct {
	Text string `yaml:"text"`
	URL  string `yaml:"url"`
	Note string `yaml:"note"`
}

// Reference renders the entry as a citation. Entries without a URL get NoURL.
func (e Entry) Reference() learning.Reference {
	url := strings.TrimSpace(e.URL)
	if url == "" {
		url = NoURL
	}
	return learning.Reference{Text: strings.TrimSpace(e.Text + " " + e.Note), URL: url}
}

// CategoryKeywords lists the module-name keywords of one topic category.
type CategoryKeywords struct {
	Category string
	Keywords []string
}

// KeywordTable keeps categories in file order; the first match wins.
type KeywordTable []CategoryKeywords

// UnmarshalYAML decodes a mapping of category to keyword list, preserving order.
func (t *KeywordTable) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: topic_keywords must be a mapping", n.Line)
	}
	table := make(KeywordTable, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var keywords []string
		if err := n.Content[i+1].Decode(&keywords); err != nil {
			return fmt.Errorf("topic_keywords.%s: %w", n.Content[i].Value, err)
		}
		table = append(table, CategoryKeywords{Category: n.Content[i].Value, Keywords: keywords})
	}
	*t = table
	return nil
}

// RoleResources are the resources curated for one target role.
type RoleResources struct {
	Core   []Entry            `yaml:"core_resources"`
	Topics map[string][]Entry `yaml:"topic_resources"`
}

// Policy is the source policy applied to model-proposed references.
type Policy struct {
	SearchResultPatterns []string `yaml:"search_result_patterns"`
	BannedDomains        []string `yaml:"banned_domains"`
	PaidPublishers       []string `yaml:"paid_publishers"`
	// ItemSegments are path segments that turn a channel URL into a
	// specific item, e.g. "playlist" in /@handle/playlist.
	ItemSegments []string `yaml:"item_segments"`
}

// DefaultPolicy is used when a catalog does not define one.
func DefaultPolicy() Policy {
	return Policy{
		SearchResultPatterns: []string{"youtube.com/results?search_query="},
		BannedDomains:        []string{"khanacademy.org"},
		PaidPublishers: []string{
			"packtpub.com", "manning.com", "oreilly.com", "apress.com",
			"amazon.com/dp", "amazon.com/gp",
		},
		ItemSegments: []string{"courses", "playlist"},
	}
}

// Catalog is the operator-curated resource configuration. It is never
// mutated after loading.
type Catalog struct {
	TopicKeywords      KeywordTable                  `yaml:"topic_keywords"`
	CategorySections   map[string]string             `yaml:"category_sections"`
	SharedResources    map[string]map[string][]Entry `yaml:"shared_resources"`
	Roles              map[string]RoleResources      `yaml:"roles"`
	FallbackReferences map[string][]Entry            `yaml:"fallback_references"`
	Policy             *Policy                       `yaml:"policy"`
	GeneralSection     string                        `yaml:"general_section"`

	folded [][]string // TopicKeywords folded for matching, same order
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing resource catalog: %w", err)
	}
	c.prepare()
	return &c, nil
}

func (c *Catalog) prepare() {
	if c.GeneralSection == "" {
		c.GeneralSection = defaultGeneralSection
	}
	if c.Policy == nil {
		p := DefaultPolicy()
		c.Policy = &p
	}
	c.folded = make([][]string, len(c.TopicKeywords))
	for i, ck := range c.TopicKeywords {
		for _, kw := range ck.Keywords {
			if f := fold(kw); f != "" {
				c.folded[i] = append(c.folded[i], f)
			}
		}
	}
}

// MatchCategory returns the first category with a keyword contained in the
// module name. Matching ignores case and accents.
func (c *Catalog) MatchCategory(moduleName string) (string, bool) {
	name := fold(moduleName)
	for i, keywords := range c.folded {
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				return c.TopicKeywords[i].Category, true
			}
		}
	}
	return "", false
}

// Section returns the shared-resource section for a category. Categories
// without a mapping use a section of the same name.
func (c *Catalog) Section(category string) string {
	if s, ok := c.CategorySections[category]; ok {
		return s
	}
	return category
}

// Shared returns the shared entries of a section at a tier, falling back to
// the intermediate tier when the section has no list for the tier.
func (c *Catalog) Shared(section string, tier Tier) []Entry {
	tiers, ok := c.SharedResources[section]
	if !ok {
		return nil
	}
	if entries, ok := tiers[tier.Key()]; ok {
		return entries
	}
	return tiers[TierIntermediate.Key()]
}

// General returns the general-section entries for a tier. There is no tier
// fallback here.
func (c *Catalog) General(tier Tier) []Entry {
	return c.SharedResources[c.GeneralSection][tier.Key()]
}

// Curated returns the category-specific entries for a role in priority
// order: at most two of the role's topic resources, then the shared section
// entries for the tier.
func (c *Catalog) Curated(role, category string, tier Tier) []Entry {
	var out []Entry
	if r, ok := c.Roles[role]; ok {
		topic := r.Topics[category]
		if len(topic) > 2 {
			topic = topic[:2]
		}
		out = append(out, topic...)
	}
	return append(out, c.Shared(c.Section(category), tier)...)
}
