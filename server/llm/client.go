package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrOracle marks every failure to obtain a reply from a remote model.
var ErrOracle = errors.New("oracle call failed")

// APIError is a non-2xx reply from the provider.
type APIError struct {
	Provider Provider
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return ErrOracle }

// Client answers prompts with a single remote model.
type Client struct {
	cfg  Config
	http *http.Client
}

// New resolves cfg and builds a client. hc may be nil.
func New(cfg Config, hc *http.Client) (*Client, error) {
	resolved, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if hc == nil {
		hc = &http.Client{Timeout: resolved.Timeout}
	}
	return &Client{cfg: resolved, http: hc}, nil
}

func (c *Client) Config() Config { return c.cfg }

// Respond sends prompt as a single user message and returns the reply text.
func (c *Client) Respond(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var (
		url     string
		payload map[string]any
	)
	switch c.cfg.Provider {
	case ProviderAnthropic:
		url = c.cfg.BaseURL + "/messages"
		if maxTokens <= 0 {
			maxTokens = 300
		}
		payload = map[string]any{
			"model":      c.cfg.Model,
			"max_tokens": maxTokens,
			"messages":   []map[string]string{{"role": "user", "content": prompt}},
		}
	default:
		url = c.cfg.BaseURL + "/chat/completions"
		payload = map[string]any{
			"model":    c.cfg.Model,
			"messages": []map[string]string{{"role": "user", "content": prompt}},
		}
		if maxTokens > 0 {
			payload["max_tokens"] = maxTokens
		}
	}
	if c.cfg.Temperature != nil {
		payload["temperature"] = *c.cfg.Temperature
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.cfg.HeaderName, c.cfg.HeaderPrefix+c.cfg.APIKey)
	if c.cfg.Organization != "" && c.cfg.Provider == ProviderOpenAI {
		req.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}
	for k, v := range c.cfg.ExtraHeaders {
		setHeaderPreserveCase(req.Header, k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOracle, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrOracle, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Provider: c.cfg.Provider, Status: resp.StatusCode, Body: truncate(string(body), 800)}
	}

	var text string
	if c.cfg.Provider == ProviderAnthropic {
		text, err = decodeAnthropic(body)
	} else {
		text, err = decodeChatCompletion(body)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOracle, err)
	}
	return text, nil
}

func decodeChatCompletion(body []byte) (string, error) {
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cc.Choices[0].Message.Content, nil
}

func decodeAnthropic(body []byte) (string, error) {
	var msg struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, part := range msg.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text content returned")
	}
	return sb.String(), nil
}

// setHeaderPreserveCase keeps header keys such as HTTP-Referer verbatim.
// Blank keys or values are ignored.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if http.CanonicalHeaderKey(key) == key {
		h.Set(key, value)
		return
	}
	h[key] = []string{value}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
