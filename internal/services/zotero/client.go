package zotero

import (
	"bytes"
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

const component = "zotero"

// Client talks to the local reference manager's connector API. The service
// may simply not be running; that surfaces as ErrUnavailable, distinct from
// ErrNotFound.
type Client struct {
	baseURL    string
	httpClient *http.Client
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

// New creates a reference-manager client from configuration.
func New(cfg config.Zotero, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "base url required", nil)
	}
	timeout := 15 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type wireCreator struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Name      string `json:"name,omitempty"`
}

type wireItem struct {
	Key              string        `json:"key,omitempty"`
	ItemType         string        `json:"itemType,omitempty"`
	Title            string        `json:"title,omitempty"`
	Creators         []wireCreator `json:"creators,omitempty"`
	Date             string        `json:"date,omitempty"`
	DOI              string        `json:"DOI,omitempty"`
	URL              string        `json:"url,omitempty"`
	AbstractNote     string        `json:"abstractNote,omitempty"`
	PublicationTitle string        `json:"publicationTitle,omitempty"`
}

func (w wireItem) citation() item.Citation {
	cit := item.Citation{
		Title:          w.Title,
		Date:           w.Date,
		DOI:            w.DOI,
		URL:            w.URL,
		Abstract:       w.AbstractNote,
		ContainerTitle: w.PublicationTitle,
		ItemType:       w.ItemType,
	}
	for _, c := range w.Creators {
		cit.Creators = append(cit.Creators, item.Creator{
			Given:   c.FirstName,
			Family:  c.LastName,
			Literal: c.Name,
		})
	}
	return cit
}

func wireFromCitation(cit item.Citation) wireItem {
	w := wireItem{
		ItemType:         cit.ItemType,
		Title:            cit.Title,
		Date:             cit.Date,
		DOI:              cit.DOI,
		URL:              cit.URL,
		AbstractNote:     cit.Abstract,
		PublicationTitle: cit.ContainerTitle,
	}
	if w.ItemType == "" {
		w.ItemType = "webpage"
	}
	for _, c := range cit.Creators {
		w.Creators = append(w.Creators, wireCreator{
			FirstName: c.Given,
			LastName:  c.Family,
			Name:      c.Literal,
		})
	}
	return w
}

// VerifyItem fetches the record behind a key. Returns ErrNotFound when no
// such record exists and ErrUnavailable when the manager is not running.
func (c *Client) VerifyItem(ctx context.Context, key string) (item.Citation, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return item.Citation{}, services.Wrap(services.ErrValidation, component, "verify", "item key required", nil)
	}
	var payload wireItem
	if err := c.doJSON(ctx, http.MethodGet, "/items/"+url.PathEscape(key), nil, &payload); err != nil {
		return item.Citation{}, err
	}
	return payload.citation(), nil
}

// SaveURL asks the manager to translate and save a URL, returning the new
// record's key and metadata snapshot.
func (c *Client) SaveURL(ctx context.Context, sourceURL string) (string, item.Citation, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", item.Citation{}, services.Wrap(services.ErrValidation, component, "save", "source url required", nil)
	}
	body := map[string]string{"url": sourceURL}
	var payload wireItem
	if err := c.doJSON(ctx, http.MethodPost, "/save", body, &payload); err != nil {
		return "", item.Citation{}, err
	}
	if strings.TrimSpace(payload.Key) == "" {
		return "", item.Citation{}, services.Wrap(services.ErrTransient, component, "save", "response missing item key", nil)
	}
	return payload.Key, payload.citation(), nil
}

// CreateLink creates a record from the supplied citation and returns its
// key.
func (c *Client) CreateLink(ctx context.Context, cit item.Citation) (string, error) {
	var payload wireItem
	if err := c.doJSON(ctx, http.MethodPost, "/items", wireFromCitation(cit), &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Key) == "" {
		return "", services.Wrap(services.ErrTransient, component, "create", "response missing item key", nil)
	}
	return payload.Key, nil
}

// RemoveLink deletes the record behind a key. A missing record returns
// ErrNotFound; callers unlinking an already-gone record may tolerate it.
func (c *Client) RemoveLink(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return services.Wrap(services.ErrValidation, component, "remove", "item key required", nil)
	}
	return c.doJSON(ctx, http.MethodDelete, "/items/"+url.PathEscape(key), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, component, "request", "marshal body", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, "request", "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Connection failures mean the manager is not running.
		return services.Wrap(services.ErrUnavailable, component, method, "reference manager unreachable", err)
	}
	defer resp.Body.Close()

	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return services.Wrap(marker, component, method, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, component, method, "decode response", err)
	}
	return nil
}
