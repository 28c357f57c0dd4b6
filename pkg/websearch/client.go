// Package websearch provides a grounded web search client backed by a
// chat-completions search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar-pro"
)

// Client answers free-form queries with cited web sources.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*Answer, error)
}

// Answer is a grounded search answer with its supporting sources.
type Answer struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
	Usage     Usage    `json:"usage"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// SearchOption configures a single search call.
type SearchOption func(*searchOpts)

type searchOpts struct {
	system    string
	maxTokens int
}

// WithSystemPrompt steers the answer style for this call.
func WithSystemPrompt(prompt string) SearchOption {
	return func(o *searchOpts) {
		o.system = prompt
	}
}

// WithMaxTokens caps the answer length for this call.
func WithMaxTokens(n int) SearchOption {
	return func(o *searchOpts) {
		o.maxTokens = n
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a web search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Usage     Usage    `json:"usage"`
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*Answer, error) {
	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	req := chatRequest{Model: c.model}
	if so.system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: so.system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: query})
	if so.maxTokens > 0 {
		req.MaxTokens = &so.maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "websearch: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("websearch: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "websearch: unmarshal response")
	}

	if len(result.Choices) == 0 {
		return nil, eris.New("websearch: response carried no choices")
	}

	return &Answer{
		Content:   result.Choices[0].Message.Content,
		Citations: result.Citations,
		Usage:     result.Usage,
	}, nil
}
