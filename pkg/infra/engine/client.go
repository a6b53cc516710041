package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/model"
)

// config holds internal engine client configuration
type config struct {
	host       string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for engine client configuration
type Option func(*config)

// WithHost sets the host the engine instance listens on
func WithHost(host string) Option {
	return func(c *config) {
		c.host = host
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client (used in tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

type client struct {
	baseURL    string
	port       int
	httpClient *http.Client
}

// NewClient creates a client for one face-animation engine instance bound to
// the given port.
func NewClient(port int, opts ...Option) (interfaces.FaceEngine, error) {
	if port <= 0 || port > 65535 {
		return nil, goerr.New(fmt.Sprintf("invalid engine port: %d", port))
	}

	cfg := &config{
		host:    "127.0.0.1",
		timeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &client{
		baseURL:    fmt.Sprintf("http://%s:%d", cfg.host, port),
		port:       port,
		httpClient: hc,
	}, nil
}

// Port returns the engine instance port this client is bound to
func (c *client) Port() int {
	return c.port
}

// SetAudio points the engine at a local audio file
func (c *client) SetAudio(ctx context.Context, path string) error {
	_, err := c.post(ctx, "/audio", map[string]any{"path": path})
	if err != nil {
		return goerr.Wrap(err, "failed to set audio")
	}
	return nil
}

// SetEmotions applies emotion weights to subsequent generation
func (c *client) SetEmotions(ctx context.Context, weights *model.EmotionWeights) error {
	_, err := c.post(ctx, "/emotions", weights.Map())
	if err != nil {
		return goerr.Wrap(err, "failed to set emotions")
	}
	return nil
}

// generateResponse is the engine's reply to a blendshape request
type generateResponse struct {
	Blendshapes json.RawMessage `json:"blendshapes"`
}

// GenerateBlendshapes renders frames for the [start, end) window of the
// current audio at the given FPS
func (c *client) GenerateBlendshapes(ctx context.Context, start, end float64, fps int) (json.RawMessage, error) {
	body, err := c.post(ctx, "/blendshapes", map[string]any{
		"start": start,
		"end":   end,
		"fps":   fps,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate blendshapes")
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, goerr.Wrap(err, "invalid blendshape response")
	}
	if len(resp.Blendshapes) == 0 {
		return nil, goerr.New("engine response has no blendshapes")
	}
	return resp.Blendshapes, nil
}

// post sends a JSON request to the engine and returns the response body.
// Non-2xx responses become errors carrying the status and a body snippet.
func (c *client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "engine request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read engine response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, goerr.New(fmt.Sprintf("engine returned %d: %s", resp.StatusCode, string(snippet)))
	}

	return body, nil
}
