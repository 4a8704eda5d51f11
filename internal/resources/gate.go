package resources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

// Gate screens model-proposed references. It is the fallback used when the
// Resolver produces nothing.
type Gate struct {
	catalog CatalogProvider
	checker LinkChecker
}

// NewGate creates a gate. The catalog supplies the source policy and the
// per-topic fallback lists; checker performs liveness checks.
func NewGate(p CatalogProvider, checker LinkChecker) *Gate {
	return &Gate{catalog: p, checker: checker}
}

// Check returns one reference per input reference. A reference breaking the
// source policy or failing the liveness check is replaced with the next
// unused fallback. When fallbacks run out the original is kept if it has a
// web URL, and is otherwise emitted as a plain citation with NoURL.
func (g *Gate) Check(ctx context.Context, refs []learning.Reference, topicID, moduleName string) []learning.Reference {
	policy := DefaultPolicy()
	c, err := g.catalog.Load(ctx)
	if err != nil {
		slog.Warn("reference gate using default policy", "error", err)
	} else if c.Policy != nil {
		policy = *c.Policy
	}

	queue := fallbackQueue(c, topicID, moduleName)
	used := make(map[string]bool, len(refs))
	out := make([]learning.Reference, 0, len(refs))

	for i, ref := range refs {
		reason, rejected := g.reject(ctx, policy, ref)
		if !rejected {
			out = append(out, ref)
			used[ref.URL] = true
			continue
		}

		replacement, ok := nextFallback(&queue, used)
		if !ok {
			if !hasWebURL(ref.URL) {
				ref.URL = NoURL
			}
			slog.Warn("keeping rejected reference, no fallbacks left",
				"index", i, "url", ref.URL, "reason", reason)
			out = append(out, ref)
			continue
		}
		slog.Info("replaced reference",
			"index", i,
			"url", ref.URL,
			"reason", reason,
			"replacement", replacement.URL,
		)
		out = append(out, replacement)
		used[replacement.URL] = true
	}
	return out
}

// reject applies the source policy rules in order, then the liveness check.
func (g *Gate) reject(ctx context.Context, p Policy, ref learning.Reference) (string, bool) {
	lowerURL := strings.ToLower(strings.TrimSpace(ref.URL))

	for _, pattern := range p.SearchResultPatterns {
		if pattern != "" && strings.Contains(lowerURL, strings.ToLower(pattern)) {
			return "search results page", true
		}
	}

	if !hasWebURL(ref.URL) {
		return "invalid url", true
	}
	u, _ := url.Parse(strings.TrimSpace(ref.URL))
	host := strings.ToLower(u.Hostname())

	for _, domain := range p.BannedDomains {
		if domainMatches(host, domain) {
			return "banned domain", true
		}
	}
	if isChannelHome(u.Path, p.ItemSegments) {
		return "channel homepage", true
	}
	if strings.Contains(strings.ToLower(ref.Text), "free") && isPaidPublisher(host, u.Path, p.PaidPublishers) {
		return "paid publisher labeled free", true
	}

	status, err := g.checker.Check(ctx, ref.URL)
	if err != nil {
		return "unreachable: " + err.Error(), true
	}
	if !status.Reachable {
		if status.Reason != "" {
			return status.Reason, true
		}
		return fmt.Sprintf("status %d", status.StatusCode), true
	}
	return "", false
}

// isChannelHome reports a path with an "@handle" segment that is not
// followed by an item segment such as "playlist" or "courses".
func isChannelHome(path string, itemSegments []string) bool {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "@") || len(seg) < 2 {
			continue
		}
		for _, rest := range segments[i+1:] {
			for _, item := range itemSegments {
				if strings.EqualFold(rest, item) {
					return false
				}
			}
		}
		return true
	}
	return false
}

// isPaidPublisher matches "domain" or "domain/segment" entries.
func isPaidPublisher(host, path string, publishers []string) bool {
	for _, p := range publishers {
		domain, segment, hasSegment := strings.Cut(strings.ToLower(p), "/")
		if !domainMatches(host, domain) {
			continue
		}
		if !hasSegment || strings.Contains(strings.ToLower(path)+"/", "/"+segment+"/") {
			return true
		}
	}
	return false
}

// domainMatches reports whether host is domain or one of its subdomains.
func domainMatches(host, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil && registrable == domain {
		return true
	}
	return hostMatches(host, domain)
}

func hostMatches(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// hasWebURL reports an absolute http(s) URL with a host.
func hasWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

// fallbackQueue lists the topic fallbacks followed by the search fallbacks,
// each URL once.
func fallbackQueue(c *Catalog, topicID, moduleName string) []learning.Reference {
	candidates := append(FallbackReferences(c, topicID, moduleName), searchReferences(moduleName)...)
	seen := make(map[string]bool, len(candidates))
	queue := candidates[:0]
	for _, ref := range candidates {
		if seen[ref.URL] {
			continue
		}
		seen[ref.URL] = true
		queue = append(queue, ref)
	}
	return queue
}

func nextFallback(queue *[]learning.Reference, used map[string]bool) (learning.Reference, bool) {
	for len(*queue) > 0 {
		next := (*queue)[0]
		*queue = (*queue)[1:]
		if !used[next.URL] {
			return next, true
		}
	}
	return learning.Reference{}, false
}
