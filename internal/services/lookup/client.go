// Package lookup resolves identifiers and titles to citation metadata via a
// Crossref-compatible REST API. All requests share one token-bucket limiter
// and one backoff policy so concurrent batch workers stay inside the
// service's rate contract.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"citetrack/internal/config"
	"citetrack/internal/item"
	"citetrack/internal/services"
)

const component = "lookup"

// Client queries a Crossref-style works API.
type Client struct {
	baseURL    string
	mailto     string
	httpClient *http.Client
	caller     services.Caller
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleep overrides how retry waits are performed; tests inject a fake.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.caller.Sleep = sleep
	}
}

// New creates a lookup client from configuration.
func New(cfg config.Lookup, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "base url required", nil)
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	backoff := services.DefaultBackoff()
	if cfg.BaseDelayMS > 0 {
		backoff.BaseDelay = time.Duration(cfg.BaseDelayMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		backoff.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}
	if cfg.MaxAttempts > 0 {
		backoff.MaxAttempts = cfg.MaxAttempts
	}
	limiter, err := services.NewLimiter(cfg.RatePerSecond, cfg.Burst)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "rate limiter", err)
	}
	client := &Client{
		baseURL:    baseURL,
		mailto:     strings.TrimSpace(cfg.Mailto),
		httpClient: &http.Client{Timeout: timeout},
		caller: services.Caller{
			Limiter: limiter,
			Backoff: backoff,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type workMessage struct {
	DOI            string     `json:"DOI"`
	URL            string     `json:"URL"`
	Type           string     `json:"type"`
	Title          []string   `json:"title"`
	ContainerTitle []string   `json:"container-title"`
	Abstract       string     `json:"abstract"`
	Author         []workName `json:"author"`
	Issued         workDate   `json:"issued"`
}

type workName struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type workDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (m workMessage) citation() item.Citation {
	cit := item.Citation{
		DOI:      m.DOI,
		URL:      m.URL,
		ItemType: m.Type,
		Abstract: m.Abstract,
	}
	if len(m.Title) > 0 {
		cit.Title = m.Title[0]
	}
	if len(m.ContainerTitle) > 0 {
		cit.ContainerTitle = m.ContainerTitle[0]
	}
	for _, a := range m.Author {
		cit.Creators = append(cit.Creators, item.Creator{
			Given:   a.Given,
			Family:  a.Family,
			Literal: a.Name,
		})
	}
	if len(m.Issued.DateParts) > 0 {
		cit.Date = formatDateParts(m.Issued.DateParts[0])
	}
	return cit
}

func formatDateParts(parts []int) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%04d", parts[0])
	case 2:
		return fmt.Sprintf("%04d-%02d", parts[0], parts[1])
	default:
		return fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2])
	}
}

// LookupIdentifier resolves an identifier candidate to citation metadata.
// Supported kinds are "doi" and "arxiv"; arXiv identifiers resolve through
// their registered DOI alias.
func (c *Client) LookupIdentifier(ctx context.Context, kind, value string) (item.Citation, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return item.Citation{}, services.Wrap(services.ErrValidation, component, "identifier", "identifier value required", nil)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case item.IdentifierDOI:
		return c.LookupDOI(ctx, value)
	case item.IdentifierArxiv:
		return c.LookupDOI(ctx, "10.48550/arXiv."+value)
	default:
		return item.Citation{}, services.Wrap(services.ErrValidation, component, "identifier", fmt.Sprintf("unsupported identifier kind %q", kind), nil)
	}
}

// LookupDOI fetches the work registered under a DOI. Returns ErrNotFound
// when the DOI is unregistered.
func (c *Client) LookupDOI(ctx context.Context, doi string) (item.Citation, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return item.Citation{}, services.Wrap(services.ErrValidation, component, "doi", "doi required", nil)
	}
	endpoint := c.baseURL + "/works/" + url.PathEscape(doi)
	return services.Call(ctx, c.caller, "lookup doi", func(ctx context.Context) (item.Citation, error) {
		var payload struct {
			Message workMessage `json:"message"`
		}
		if err := c.get(ctx, endpoint, nil, &payload); err != nil {
			return item.Citation{}, err
		}
		return payload.Message.citation(), nil
	})
}

// LookupTitle searches for the best bibliographic match for a title.
// Returns ErrNotFound when nothing matches.
func (c *Client) LookupTitle(ctx context.Context, title string) (item.Citation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return item.Citation{}, services.Wrap(services.ErrValidation, component, "title", "title required", nil)
	}
	params := url.Values{}
	params.Set("query.bibliographic", title)
	params.Set("rows", "1")
	endpoint := c.baseURL + "/works"
	return services.Call(ctx, c.caller, "lookup title", func(ctx context.Context) (item.Citation, error) {
		var payload struct {
			Message struct {
				Items []workMessage `json:"items"`
			} `json:"message"`
		}
		if err := c.get(ctx, endpoint, params, &payload); err != nil {
			return item.Citation{}, err
		}
		if len(payload.Message.Items) == 0 {
			return item.Citation{}, services.Wrap(services.ErrNotFound, component, "title", "no matching work", nil)
		}
		return payload.Message.Items[0].citation(), nil
	})
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}
	target := endpoint
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, "get", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, component, "get", "request failed", err)
	}
	defer resp.Body.Close()

	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return services.Wrap(marker, component, "get", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, component, "get", "decode response", err)
	}
	return nil
}
