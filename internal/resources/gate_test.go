package resources_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/resources"
)

// fakeChecker reports every URL as reachable unless listed in dead.
type fakeChecker struct {
	mu      sync.Mutex
	dead    map[string]int
	failing map[string]bool
	calls   []string
}

func (f *fakeChecker) Check(_ context.Context, rawURL string) (resources.LinkStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if f.failing[rawURL] {
		return resources.LinkStatus{}, errors.New("connection refused")
	}
	if code, ok := f.dead[rawURL]; ok {
		return resources.LinkStatus{StatusCode: code}, nil
	}
	return resources.LinkStatus{Reachable: true, StatusCode: 200}, nil
}

func TestGate_Rules(t *testing.T) {
	tests := []struct {
		name     string
		ref      learning.Reference
		replaced bool
	}{
		{"search results", learning.Reference{Text: "Videos", URL: "https://www.youtube.com/results?search_query=eigen"}, true},
		{"banned domain", learning.Reference{Text: "Khan", URL: "https://www.khanacademy.org/math/linear-algebra"}, true},
		{"banned subdomain", learning.Reference{Text: "Khan", URL: "https://es.khanacademy.org/math"}, true},
		{"channel homepage", learning.Reference{Text: "StatQuest", URL: "https://www.youtube.com/@statquest"}, true},
		{"channel videos tab", learning.Reference{Text: "StatQuest", URL: "https://www.youtube.com/@statquest/videos"}, true},
		{"channel courses", learning.Reference{Text: "MIT", URL: "https://www.youtube.com/@mitocw/courses"}, false},
		{"free on paid publisher", learning.Reference{Text: "Free eBook: Linear Algebra", URL: "https://www.packtpub.com/product/la"}, true},
		{"FREE on amazon product", learning.Reference{Text: "FREE download", URL: "https://www.amazon.com/Linear-Algebra/dp/0980232775"}, true},
		{"paid publisher without claim", learning.Reference{Text: "Linear Algebra (book)", URL: "https://www.packtpub.com/product/la"}, false},
		{"free on amazon search", learning.Reference{Text: "free", URL: "https://www.amazon.com/s?k=linear"}, false},
		{"dead link", learning.Reference{Text: "Gone", URL: "https://example.org/404"}, true},
		{"transport error", learning.Reference{Text: "Down", URL: "https://down.example.org/"}, true},
		{"legacy bare string", learning.Reference{Text: "Hull, Options"}, true},
		{"non-http scheme", learning.Reference{Text: "FTP", URL: "ftp://example.org/book.pdf"}, true},
		{"live link", learning.Reference{Text: "Strang", URL: "https://math.mit.edu/~gs/linearalgebra/"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &fakeChecker{
				dead:    map[string]int{"https://example.org/404": 404},
				failing: map[string]bool{"https://down.example.org/": true},
			}
			g := resources.NewGate(fixture(t), checker)

			got := g.Check(context.Background(), []learning.Reference{tt.ref}, "linear_algebra", "Eigen Decomposition")
			if len(got) != 1 {
				t.Fatalf("Check() returned %d references, want 1", len(got))
			}
			wasReplaced := got[0] != tt.ref
			if wasReplaced != tt.replaced {
				t.Errorf("replaced = %v, want %v (got %+v)", wasReplaced, tt.replaced, got[0])
			}
			if tt.replaced && got[0].URL != "https://ocw.mit.edu/courses/18-06sc" {
				t.Errorf("replacement = %+v, want the first topic fallback", got[0])
			}
		})
	}
}

func TestGate_PolicyRejectionsSkipLivenessCheck(t *testing.T) {
	checker := &fakeChecker{}
	g := resources.NewGate(fixture(t), checker)

	g.Check(context.Background(), []learning.Reference{
		{Text: "Free", URL: "https://www.manning.com/books/x"},
		{Text: "Khan", URL: "https://www.khanacademy.org/"},
		{Text: "ok", URL: "https://ocw.mit.edu/x"},
	}, "linear_algebra", "Vectors")

	if len(checker.calls) != 1 || checker.calls[0] != "https://ocw.mit.edu/x" {
		t.Errorf("liveness checks = %v, want only the policy-compliant URL", checker.calls)
	}
}

func TestGate_FallbackOrderAndExhaustion(t *testing.T) {
	g := resources.NewGate(fixture(t), &fakeChecker{})

	rejected := []learning.Reference{
		{Text: "a", URL: "https://www.khanacademy.org/a"},
		{Text: "b", URL: "https://www.khanacademy.org/b"},
		{Text: "c", URL: "https://www.khanacademy.org/c"},
		{Text: "d", URL: "https://www.khanacademy.org/d"},
		{Text: "e", URL: "https://www.khanacademy.org/e"},
	}
	got := g.Check(context.Background(), rejected, "linear_algebra", "Eigen Values")

	want := []string{
		"https://ocw.mit.edu/courses/18-06sc",
		"https://example.org/la-notes",
		"https://ocw.mit.edu/search/?q=Eigen+Values",
		"https://www.coursera.org/courses?query=Eigen+Values",
		"https://www.khanacademy.org/e",
	}
	if len(got) != len(want) {
		t.Fatalf("Check() returned %d references, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].URL != want[i] {
			t.Errorf("got[%d].URL = %q, want %q", i, got[i].URL, want[i])
		}
	}
}

func TestGate_GenericFallbacksForUnknownTopic(t *testing.T) {
	g := resources.NewGate(fixture(t), &fakeChecker{})

	got := g.Check(context.Background(), []learning.Reference{
		{Text: "Free", URL: "https://www.oreilly.com/library/view/x"},
		{Text: "Free", URL: "https://www.oreilly.com/library/view/y"},
		{Text: "Free", URL: "https://www.oreilly.com/library/view/z"},
	}, "garch_models", "GARCH Models")

	if !strings.HasPrefix(got[0].URL, "https://ocw.mit.edu/search/") {
		t.Errorf("got[0] = %+v, want MIT OpenCourseWare search", got[0])
	}
	if !strings.HasPrefix(got[1].URL, "https://www.coursera.org/") {
		t.Errorf("got[1] = %+v, want Coursera search", got[1])
	}
	if got[2].URL != "https://www.oreilly.com/library/view/z" {
		t.Errorf("got[2] = %+v, want the original kept once fallbacks run out", got[2])
	}
}

func TestGate_DefaultPolicyWithoutCatalog(t *testing.T) {
	p := resources.NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	g := resources.NewGate(p, &fakeChecker{})

	got := g.Check(context.Background(), []learning.Reference{
		{Text: "Khan", URL: "https://www.khanacademy.org/"},
	}, "linear_algebra", "Vectors")

	if got[0].URL != "https://ocw.mit.edu/search/?q=Vectors" {
		t.Errorf("got[0] = %+v, want generic fallback under the default policy", got[0])
	}
}

func TestGate_BareStringReferencesNeverKeepEmptyURL(t *testing.T) {
	g := resources.NewGate(resources.NewStaticProvider(&resources.Catalog{}), &fakeChecker{})

	got := g.Check(context.Background(), []learning.Reference{
		{Text: "Book A"},
		{Text: "Book B"},
		{Text: "Book C"},
	}, "unknown_topic", "Stochastic Calculus")

	want := []learning.Reference{
		{Text: "MIT OpenCourseWare: Stochastic Calculus", URL: "https://ocw.mit.edu/search/?q=Stochastic+Calculus"},
		{Text: "Coursera: Stochastic Calculus", URL: "https://www.coursera.org/courses?query=Stochastic+Calculus"},
		{Text: "Book C", URL: resources.NoURL},
	}
	if len(got) != len(want) {
		t.Fatalf("Check() returned %d references, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
