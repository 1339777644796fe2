// Package discovery fetches a source page and scrapes identifier
// candidates out of it: bibliographic meta tags first, then outbound
// identifier links, then a raw text scan. Discovered candidates are
// surfaced for review, never acted on automatically.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"citetrack/internal/config"
	"citetrack/internal/item"
	"citetrack/internal/services"
)

const (
	component = "discovery"

	MethodMetaTag  = "meta_tag"
	MethodAnchor   = "anchor"
	MethodTextScan = "text_scan"

	defaultUserAgent     = "citetrack/1.0"
	defaultMaxCandidates = 10
)

var (
	doiPattern   = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)
	arxivPattern = regexp.MustCompile(`(\d{4}\.\d{4,5})(v\d+)?`)
)

// Discoverer scrapes identifier candidates from source pages.
type Discoverer struct {
	userAgent     string
	maxCandidates int
	httpClient    *http.Client
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Discoverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// New creates a Discoverer from configuration.
func New(cfg config.Discovery, opts ...Option) *Discoverer {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	d := &Discoverer{
		userAgent:     strings.TrimSpace(cfg.UserAgent),
		maxCandidates: cfg.MaxCandidates,
		httpClient:    &http.Client{Timeout: timeout},
	}
	if d.userAgent == "" {
		d.userAgent = defaultUserAgent
	}
	if d.maxCandidates <= 0 {
		d.maxCandidates = defaultMaxCandidates
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches the page behind sourceURL and returns identifier
// candidates in discovery order, deduplicated, capped at the configured
// maximum. A page that cannot be fetched or parsed at all returns
// ErrContentUnreadable; an empty slice with nil error means the page was
// readable but carried no identifiers.
func (d *Discoverer) Discover(ctx context.Context, sourceURL string) ([]item.IdentifierCandidate, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, services.Wrap(services.ErrValidation, component, "discover", "source url required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrContentUnreadable, component, "discover", "build request", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrContentUnreadable, component, "discover", "fetch page", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, component, "discover", fmt.Sprintf("http %d", resp.StatusCode), nil)
	default:
		// Gone, forbidden, paywalled: nothing extractable behind this URL.
		return nil, services.Wrap(services.ErrContentUnreadable, component, "discover", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrContentUnreadable, component, "discover", "parse html", err)
	}
	return d.scrape(doc), nil
}

type collector struct {
	seen       map[string]struct{}
	candidates []item.IdentifierCandidate
	limit      int
}

func (c *collector) add(kind, value, method string) {
	value = normalizeIdentifier(kind, value)
	if value == "" || len(c.candidates) >= c.limit {
		return
	}
	key := kind + "\x00" + strings.ToLower(value)
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.candidates = append(c.candidates, item.IdentifierCandidate{
		ID:     len(c.candidates) + 1,
		Kind:   kind,
		Value:  value,
		Method: method,
		Status: item.CandidateUnreviewed,
	})
}

func (d *Discoverer) scrape(doc *goquery.Document) []item.IdentifierCandidate {
	col := &collector{seen: make(map[string]struct{}), limit: d.maxCandidates}

	doc.Find(`meta[name="citation_doi"], meta[name="dc.identifier"]`).Each(func(_ int, sel *goquery.Selection) {
		content, _ := sel.Attr("content")
		if doi := doiPattern.FindString(content); doi != "" {
			col.add(item.IdentifierDOI, doi, MethodMetaTag)
		}
	})
	doc.Find(`meta[name="citation_arxiv_id"]`).Each(func(_ int, sel *goquery.Selection) {
		content, _ := sel.Attr("content")
		if id := arxivID(content); id != "" {
			col.add(item.IdentifierArxiv, id, MethodMetaTag)
		}
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		switch {
		case strings.Contains(href, "doi.org/"):
			if doi := doiPattern.FindString(href); doi != "" {
				col.add(item.IdentifierDOI, doi, MethodAnchor)
			}
		case strings.Contains(href, "arxiv.org/abs/"):
			rest := href[strings.Index(href, "arxiv.org/abs/")+len("arxiv.org/abs/"):]
			if id := arxivID(rest); id != "" {
				col.add(item.IdentifierArxiv, id, MethodAnchor)
			}
		}
	})

	for _, doi := range doiPattern.FindAllString(doc.Text(), -1) {
		col.add(item.IdentifierDOI, doi, MethodTextScan)
	}

	return col.candidates
}

// arxivID extracts the bare identifier, dropping any version suffix so
// that v1 and v2 sightings of the same paper deduplicate.
func arxivID(s string) string {
	m := arxivPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func normalizeIdentifier(kind, value string) string {
	value = strings.TrimSpace(value)
	if kind == item.IdentifierDOI {
		// Text scans pick up trailing sentence punctuation.
		value = strings.TrimRight(value, ".,;)")
	}
	return value
}
