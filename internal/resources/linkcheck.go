package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultLinkTimeout = 5 * time.Second
	maxPageBytes       = 2 << 20
	defaultUserAgent   = "pai-learnpath-linkcheck/1.0"
)

// LinkStatus is the outcome of a liveness check.
type LinkStatus struct {
	Reachable  bool
	StatusCode int
	Reason     string // why an answered request still counts as unreachable
}

// LinkChecker reports whether a URL points at live content.
type LinkChecker interface {
	Check(ctx context.Context, rawURL string) (LinkStatus, error)
}

// HTTPLinkChecker checks links with HEAD, retrying with GET when the server
// rejects HEAD. Playlist pages are fetched and inspected because the
// platform answers 200 for empty or private playlists.
type HTTPLinkChecker struct {
	client        *http.Client
	timeout       time.Duration
	userAgent     string
	playlistHosts []string
}

// LinkCheckerOption configures an HTTPLinkChecker.
type LinkCheckerOption func(*HTTPLinkChecker)

// WithLinkTimeout bounds each check. The default is five seconds.
func WithLinkTimeout(d time.Duration) LinkCheckerOption {
	return func(c *HTTPLinkChecker) {
		c.timeout = d
	}
}

// WithLinkHTTPClient sets a custom HTTP client.
func WithLinkHTTPClient(client *http.Client) LinkCheckerOption {
	return func(c *HTTPLinkChecker) {
		c.client = client
	}
}

// WithPlaylistHosts sets the hosts whose /playlist pages are inspected.
func WithPlaylistHosts(hosts ...string) LinkCheckerOption {
	return func(c *HTTPLinkChecker) {
		c.playlistHosts = hosts
	}
}

// NewHTTPLinkChecker creates a link checker.
func NewHTTPLinkChecker(opts ...LinkCheckerOption) *HTTPLinkChecker {
	c := &HTTPLinkChecker{
		client:        http.DefaultClient,
		timeout:       defaultLinkTimeout,
		userAgent:     defaultUserAgent,
		playlistHosts: []string{"youtube.com"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPLinkChecker) Check(ctx context.Context, rawURL string) (LinkStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.isPlaylist(rawURL) {
		return c.checkPlaylist(ctx, rawURL)
	}

	code, err := c.status(ctx, http.MethodHead, rawURL)
	if err != nil {
		return LinkStatus{Reason: err.Error()}, err
	}
	if code == http.StatusMethodNotAllowed {
		code, err = c.status(ctx, http.MethodGet, rawURL)
		if err != nil {
			return LinkStatus{Reason: err.Error()}, err
		}
	}
	return LinkStatus{Reachable: isSuccess(code), StatusCode: code}, nil
}

func (c *HTTPLinkChecker) status(ctx context.Context, method, rawURL string) (int, error) {
	resp, err := c.do(ctx, method, rawURL)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *HTTPLinkChecker) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	return resp, nil
}

var emptyPlaylistPattern = regexp.MustCompile(`"videoCount":"?0"?[,}]|(?i)(^|[^0-9])0 videos`)

var unavailablePhrases = []string{
	"playlist does not exist",
	"playlist not found",
	"this playlist is private",
	"playlist is unavailable",
	"playlist unavailable",
}

func (c *HTTPLinkChecker) checkPlaylist(ctx context.Context, rawURL string) (LinkStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return LinkStatus{Reason: err.Error()}, err
	}
	defer resp.Body.Close()

	status := LinkStatus{StatusCode: resp.StatusCode}
	if !isSuccess(resp.StatusCode) {
		return status, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return LinkStatus{StatusCode: resp.StatusCode, Reason: err.Error()}, fmt.Errorf("reading playlist page: %w", err)
	}
	page := string(body)

	if emptyPlaylistPattern.MatchString(page) {
		status.Reason = "empty playlist"
		return status, nil
	}

	text := strings.ToLower(page)
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page)); err == nil {
		title := strings.ToLower(doc.Find("head title").First().Text())
		text = title + " " + strings.ToLower(doc.Find("body").Text())
	}
	for _, phrase := range unavailablePhrases {
		if strings.Contains(text, phrase) {
			status.Reason = phrase
			return status, nil
		}
	}

	status.Reachable = true
	return status, nil
}

func (c *HTTPLinkChecker) isPlaylist(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.HasPrefix(u.Path, "/playlist") {
		return false
	}
	for _, h := range c.playlistHosts {
		if hostMatches(u.Hostname(), h) {
			return true
		}
	}
	return false
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
