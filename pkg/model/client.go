package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	assisterr "github.com/il-dat/open-code-assistant/pkg/errors"
	"github.com/il-dat/open-code-assistant/pkg/logging"
)

const (
	defaultBaseURL = "http://localhost:11434"

	// Fixed upper bound on buffered generation calls. The streaming path has
	// no client-side timeout; the caller's context governs it.
	defaultTimeout = 30 * time.Second

	// Local inference servers handle one request at a time anyway; the
	// limiter only smooths rapid completion re-triggering.
	defaultRateLimit = rate.Limit(10)
	defaultBurstSize = 5

	readBufferSize = 4 * 1024
)

// ClientConfig holds the settings the client is built from. A new config
// takes effect only through NewClient or Reconfigure; in-flight requests keep
// the transport they started with.
type ClientConfig struct {
	BaseURL            string
	AuthToken          string
	NetworkLogsEnabled bool
	NetworkLogDir      string
}

func (cfg ClientConfig) normalized() ClientConfig {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

// Client talks to an Ollama-compatible inference server.
type Client struct {
	mu           sync.RWMutex
	cfg          ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	transport    *LoggingTransport
	rateLimiter  *rate.Limiter
	logger       *logging.Logger
}

// NewClient builds a client from config. The logger may be nil.
func NewClient(cfg ClientConfig, logger *logging.Logger) *Client {
	c := &Client{
		rateLimiter: rate.NewLimiter(defaultRateLimit, defaultBurstSize),
		logger:      logger,
	}
	c.rebuild(cfg)
	return c
}

// Reconfigure rebuilds the underlying transport with new settings. Requests
// already in flight are unaffected: they hold the clients they started with.
func (c *Client) Reconfigure(cfg ClientConfig) {
	c.mu.Lock()
	old := c.transport
	c.mu.Unlock()

	c.rebuild(cfg)

	if old != nil {
		_ = old.Close()
	}
}

func (c *Client) rebuild(cfg ClientConfig) {
	cfg = cfg.normalized()
	transport := NewLoggingTransport(nil, cfg.NetworkLogDir, cfg.NetworkLogsEnabled)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.transport = transport
	c.httpClient = &http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
	}
	c.streamClient = &http.Client{
		Transport: transport,
	}
}

// snapshot returns a consistent view of config and clients for one request.
func (c *Client) snapshot() (ClientConfig, *http.Client, *http.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.httpClient, c.streamClient
}

// BaseURL returns the configured endpoint base URL.
func (c *Client) BaseURL() string {
	cfg, _, _ := c.snapshot()
	return cfg.BaseURL
}

// Close releases client resources
func (c *Client) Close() error {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, cfg ClientConfig) {
	req.Header.Set("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}
}

// Generate executes a buffered generation request.
func (c *Client) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResponse, error) {
	cfg, httpClient, _ := c.snapshot()
	genReq.Stream = false

	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq, cfg)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, classifyTransportError(err, cfg.BaseURL)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err, cfg.BaseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamStatusError(resp)
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, assisterr.Wrap(err, assisterr.ErrCodeUpstream, "decode generate response")
	}
	return &genResp, nil
}

// GenerateStream executes a streaming generation request. The chunk channel
// yields deltas in emission order and closes after the final chunk, a
// transport failure, or context cancellation; the error channel carries at
// most one error. Malformed stream lines are logged and skipped.
func (c *Client) GenerateStream(ctx context.Context, genReq GenerateRequest) (<-chan GenerateChunk, <-chan error) {
	chunkChan := make(chan GenerateChunk, 10)
	errChan := make(chan error, 1)

	fail := func(err error) (<-chan GenerateChunk, <-chan error) {
		errChan <- err
		close(chunkChan)
		close(errChan)
		return chunkChan, errChan
	}

	cfg, _, streamClient := c.snapshot()
	genReq.Stream = true

	body, err := json.Marshal(genReq)
	if err != nil {
		return fail(fmt.Errorf("marshal generate request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	c.setHeaders(httpReq, cfg)
	httpReq.Header.Set("Accept", "application/x-ndjson")

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fail(classifyTransportError(err, cfg.BaseURL))
	}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return fail(classifyTransportError(err, cfg.BaseURL))
	}

	if resp.StatusCode != http.StatusOK {
		err := upstreamStatusError(resp)
		resp.Body.Close()
		return fail(err)
	}

	go func() {
		defer resp.Body.Close()
		defer close(chunkChan)
		defer close(errChan)

		dec := &lineDecoder{}
		buf := make([]byte, readBufferSize)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, line := range dec.Feed(buf[:n]) {
					final, ok := c.emitLine(ctx, line, chunkChan)
					if !ok || final {
						return
					}
				}
			}

			if readErr != nil {
				if readErr == io.EOF {
					if trailing := dec.Flush(); trailing != nil {
						c.emitLine(ctx, trailing, chunkChan)
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				errChan <- classifyTransportError(readErr, cfg.BaseURL)
				return
			}
		}
	}()

	return chunkChan, errChan
}

// emitLine decodes one NDJSON line and sends the resulting chunk. It returns
// whether the chunk was final and whether the consumer is still listening.
func (c *Client) emitLine(ctx context.Context, line []byte, chunkChan chan<- GenerateChunk) (final bool, ok bool) {
	var genResp GenerateResponse
	if err := json.Unmarshal(line, &genResp); err != nil {
		c.logger.Warn(logging.CategoryModel, "malformed_stream_line", "skipping unparseable stream line", map[string]any{
			"error": err.Error(),
			"bytes": len(line),
		})
		return false, true
	}

	chunk := GenerateChunk{TextDelta: genResp.Response, IsFinal: genResp.Done}

	select {
	case <-ctx.Done():
		return false, false
	case chunkChan <- chunk:
	}
	return chunk.IsFinal, true
}

// ListModels retrieves the models available on the inference server. A
// missing or empty catalog collapses to an empty slice.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	cfg, httpClient, _ := c.snapshot()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq, cfg)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err, cfg.BaseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamStatusError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, assisterr.Wrap(err, assisterr.ErrCodeUpstream, "decode model list")
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		if strings.TrimSpace(m.Name) == "" {
			continue
		}
		models = append(models, m)
	}
	return models, nil
}

// CheckHealth reports whether the inference server answers at all. It never
// returns an error; every failure mode collapses to false.
func (c *Client) CheckHealth(ctx context.Context) bool {
	cfg, httpClient, _ := c.snapshot()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/", http.NoBody)
	if err != nil {
		return false
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// classifyTransportError maps transport faults into the error taxonomy.
// Cancellation is recognized structurally, never by message text.
func classifyTransportError(err error, baseURL string) error {
	if errors.Is(err, context.Canceled) {
		return assisterr.Wrap(err, assisterr.ErrCodeCancelled, "generation aborted")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return assisterr.Wrap(err, assisterr.ErrCodeServiceUnavailable, "inference server unreachable").
			WithContext("base_url", baseURL).
			WithRetryable(true).
			WithUserMessage(fmt.Sprintf("Cannot reach the inference server at %s. Start it with `ollama serve`.", baseURL))
	}

	return assisterr.Wrap(err, assisterr.ErrCodeUpstream, "inference request failed").
		WithContext("base_url", baseURL)
}

// upstreamStatusError builds an error for a non-2xx response, preferring the
// server's own error field when the body carries one.
func upstreamStatusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	message := resp.Status
	if readErr == nil && len(body) > 0 {
		var serverErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &serverErr) == nil && serverErr.Error != "" {
			message = serverErr.Error
		} else {
			message = strings.TrimSpace(string(body))
			if len(message) > 500 {
				message = message[:500] + "..."
			}
		}
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: message}
	return assisterr.Wrap(apiErr, assisterr.ErrCodeUpstream, "inference server error").
		WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
}
