package resources

import (
	"net/url"
	"strings"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

// FallbackReferences returns the catalog's fallback list for a topic, or
// search-style references built from the module name when the topic has none.
// c may be nil.
func FallbackReferences(c *Catalog, topicID, moduleName string) []learning.Reference {
	if c != nil {
		var refs []learning.Reference
		for _, e := range c.FallbackReferences[topicID] {
			if strings.TrimSpace(e.URL) == "" {
				continue
			}
			refs = append(refs, e.Reference())
		}
		if len(refs) > 0 {
			return refs
		}
	}
	return searchReferences(moduleName)
}

func searchReferences(moduleName string) []learning.Reference {
	q := url.QueryEscape(strings.TrimSpace(moduleName))
	return []learning.Reference{
		{Text: "MIT OpenCourseWare: " + moduleName, URL: "https://ocw.mit.edu/search/?q=" + q},
		{Text: "Coursera: " + moduleName, URL: "https://www.coursera.org/courses?query=" + q},
	}
}
