// Package generation calls the external text-generation provider.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/ports"
)

// ErrEmptyReply is returned when the provider answers without any text.
var ErrEmptyReply = errors.New("generation provider returned no text")

// Config contains configuration for the provider client.
type Config struct {
	BaseURL         string // e.g. https://generativelanguage.googleapis.com
	APIKey          string
	Model           string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// Client talks to a Gemini-compatible generateContent endpoint.
type Client struct {
	client  *http.Client
	baseURL *url.URL
	apiKey  string
	model   string
}

// NewClient creates a new provider client.
func NewClient(cfg Config) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 20
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-pro"
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Client{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends the prompt and returns the concatenated reply text.
func (c *Client) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.MaxChars > 0 {
		// Roughly four characters per token, with headroom for the cut marker.
		body.GenerationConfig.MaxOutputTokens = req.MaxChars/4 + 64
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{
		Path: "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent",
	})
	q := endpoint.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("read response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.GenerationResult{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return ports.GenerationResult{}, fmt.Errorf("provider status %d: %s", resp.StatusCode, msg)
	}

	var b strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return ports.GenerationResult{}, ErrEmptyReply
	}
	return ports.GenerationResult{Text: b.String(), Model: c.model}, nil
}

// Ensure interface compliance.
var _ ports.Generator = (*Client)(nil)

// Offline answers every prompt with a fixed reply. Used when no provider is
// configured so the governance paths can still be exercised locally.
type Offline struct {
	Reply string
}

// Generate returns the fixed reply.
func (o Offline) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.GenerationResult{}, err
	}
	reply := o.Reply
	if reply == "" {
		reply = "The assistant is running in offline mode; no generation provider is configured."
	}
	return ports.GenerationResult{Text: reply, Model: "offline"}, nil
}

var _ ports.Generator = Offline{}
