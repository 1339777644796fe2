// Package extract builds a citation for pages no translator or identifier
// lookup can handle: it strips the page down to readable text, then asks a
// language model to emit the bibliographic fields as JSON. Results are
// custom records and are always marked for completeness review by the
// caller when fields are missing.
package extract

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

	readability "github.com/go-shiori/go-readability"

	"citetrack/internal/config"
	"citetrack/internal/item"
	"citetrack/internal/services"
)

const (
	component = "extract"

	// maxExcerptRunes bounds the page text sent to the model.
	maxExcerptRunes = 8000

	defaultModel = "gpt-4o-mini"
)

const systemPrompt = `You extract bibliographic metadata from web page text.
Respond with a single JSON object and nothing else, using these keys:
"title", "creators" (array of {"given","family"} or {"literal"}), "date"
(ISO 8601, as precise as the page allows), "container_title", "doi",
"item_type". Omit keys you cannot determine. Never invent values.`

// Extractor produces citations from raw page content via an
// OpenAI-compatible chat API.
type Extractor struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	pageClient *http.Client
	caller     services.Caller
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the client used for the model API.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithPageClient overrides the client used to fetch source pages.
func WithPageClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.pageClient = client
		}
	}
}

// WithSleep overrides how retry waits are performed; tests inject a fake.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Extractor) {
		e.caller.Sleep = sleep
	}
}

// New creates an Extractor from configuration.
func New(cfg config.LLM, opts ...Option) (*Extractor, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "base url required", nil)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "api key required", nil)
	}
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	e := &Extractor{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		pageClient: &http.Client{Timeout: 30 * time.Second},
		caller:     services.Caller{Backoff: services.DefaultBackoff()},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract fetches the source page, reduces it to readable text, and asks
// the model for citation metadata. An unreachable or unparseable page
// returns ErrContentUnreadable.
func (e *Extractor) Extract(ctx context.Context, sourceURL string) (item.Citation, error) {
	title, text, err := e.fetchReadable(ctx, sourceURL)
	if err != nil {
		return item.Citation{}, err
	}
	cit, err := e.complete(ctx, sourceURL, title, text)
	if err != nil {
		return item.Citation{}, err
	}
	if cit.URL == "" {
		cit.URL = sourceURL
	}
	if cit.ItemType == "" {
		cit.ItemType = "webpage"
	}
	return cit, nil
}

func (e *Extractor) fetchReadable(ctx context.Context, sourceURL string) (title, text string, err error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, component, "fetch", "parse source url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, component, "fetch", "build request", err)
	}
	resp, err := e.pageClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", "", err
		}
		return "", "", services.Wrap(services.ErrContentUnreadable, component, "fetch", "fetch page", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", services.Wrap(services.ErrContentUnreadable, component, "fetch", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", "", services.Wrap(services.ErrContentUnreadable, component, "fetch", "extract readable text", err)
	}
	text = strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", "", services.Wrap(services.ErrContentUnreadable, component, "fetch", "page has no readable text", nil)
	}
	if runes := []rune(text); len(runes) > maxExcerptRunes {
		text = string(runes[:maxExcerptRunes])
	}
	return article.Title, text, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (e *Extractor) complete(ctx context.Context, sourceURL, title, text string) (item.Citation, error) {
	userPrompt := fmt.Sprintf("URL: %s\nPage title: %s\n\nPage text:\n%s", sourceURL, title, text)
	payload := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return item.Citation{}, services.Wrap(services.ErrValidation, component, "complete", "marshal request", err)
	}

	return services.Call(ctx, e.caller, "llm extract", func(ctx context.Context) (item.Citation, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return item.Citation{}, services.Wrap(services.ErrValidation, component, "complete", "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return item.Citation{}, err
			}
			return item.Citation{}, services.Wrap(services.ErrTransient, component, "complete", "request failed", err)
		}
		defer resp.Body.Close()

		if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
			return item.Citation{}, services.Wrap(marker, component, "complete", fmt.Sprintf("http %d", resp.StatusCode), nil)
		}
		var decoded chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return item.Citation{}, services.Wrap(services.ErrTransient, component, "complete", "decode response", err)
		}
		if len(decoded.Choices) == 0 {
			return item.Citation{}, services.Wrap(services.ErrTransient, component, "complete", "empty completion", nil)
		}
		cit, err := parseCitationJSON(decoded.Choices[0].Message.Content)
		if err != nil {
			return item.Citation{}, services.Wrap(services.ErrValidation, component, "complete", "model returned malformed citation", err)
		}
		return cit, nil
	})
}

// parseCitationJSON tolerates markdown code fences around the JSON object.
func parseCitationJSON(content string) (item.Citation, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return item.Citation{}, fmt.Errorf("no JSON object in completion")
	}
	var cit item.Citation
	if err := json.Unmarshal([]byte(content[start:end+1]), &cit); err != nil {
		return item.Citation{}, err
	}
	return cit, nil
}
