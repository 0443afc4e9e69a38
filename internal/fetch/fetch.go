// Package fetch takes plain-text snapshots of client websites for the
// research agent.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; FlowAgents/1.0)"
	// DefaultMaxChars bounds the snapshot text handed to an agent.
	DefaultMaxChars = 12000

	maxBodyBytes = 4 << 20
)

// ErrNotHTML is returned when the page body is not text, e.g. a PDF or image.
var ErrNotHTML = errors.New("page is not HTML")

// noise is removed before text extraction.
const noise = "nav, footer, header, script, style, noscript, iframe, svg, form, .cookie-banner, .popup, .newsletter"

// contentSelectors are tried in order; the first match is the page's main text.
var contentSelectors = []string{"main", "article", "[role=main]", ".content", "#content", ".main-content", "#main-content"}

// Error describes a failed snapshot. Status is zero unless the server answered.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("snapshot %s: HTTP status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("snapshot %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures TakeSnapshot.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// MaxChars truncates snapshot text; zero means DefaultMaxChars.
	MaxChars int
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

func DefaultOptions() *Options {
	return &Options{Timeout: DefaultTimeout, UserAgent: DefaultUserAgent, MaxChars: DefaultMaxChars}
}

// Snapshot is the text view of a client's website.
type Snapshot struct {
	URL         string
	Title       string
	Description string
	Text        string
	Truncated   bool
	FetchedAt   time.Time
}

// String renders the snapshot for inclusion in a prompt.
func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", s.URL)
	if s.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", s.Title)
	}
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", s.Description)
	}
	b.WriteString("\n")
	b.WriteString(s.Text)
	return b.String()
}

// TakeSnapshot fetches an http(s) page and extracts its title, meta
// description and main text.
func TakeSnapshot(ctx context.Context, rawURL string, opts *Options) (*Snapshot, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &Error{URL: rawURL, Err: errors.New("invalid URL")}
	}

	body, err := get(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if !isText(mimetype.Detect(body)) {
		return nil, &Error{URL: rawURL, Err: ErrNotHTML}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	snap := &Snapshot{
		URL:         rawURL,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(description),
		FetchedAt:   time.Now().UTC(),
	}

	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	snap.Text, snap.Truncated = truncateRunes(mainText(doc), maxChars)
	return snap, nil
}

func get(ctx context.Context, rawURL string, opts *Options) ([]byte, error) {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	return body, nil
}

// isText reports whether m is text/plain or one of its descendants (html, xml).
func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// mainText strips noise and returns the first content region, or the body.
func mainText(doc *goquery.Document) string {
	doc.Find(noise).Remove()
	region := doc.Find("body")
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			region = sel.First()
			break
		}
	}
	return cleanWhitespace(region.Text())
}

func cleanWhitespace(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= n {
		return s, false
	}
	return string(runes[:n]), true
}
