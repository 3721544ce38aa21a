// Package extract converts raw note text into a ParsedNote by calling
// an Ollama-compatible generate endpoint and validating the answer
// against the four-field note schema.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
)

// Extractor is the pipeline-facing contract: note text in, ParsedNote or
// a classified failure out.
type Extractor interface {
	Extract(ctx context.Context, text string) (models.ParsedNote, error)
	Model() string
}

// Client talks to the upstream inference endpoint.
type Client struct {
	api         *api.Client
	model       string
	timeout     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Verify Client satisfies Extractor at compile time.
var _ Extractor = (*Client)(nil)

// New creates a Client for the given endpoint URL and model. The
// endpoint may be a bare base URL or a full .../api/generate URL; the
// generate path is appended by the underlying client either way.
// maxAttempts bounds network-level retries per request.
func New(endpoint, model string, timeout time.Duration, maxAttempts int, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("extract: parse endpoint: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/api/generate")
	base.Path = strings.TrimSuffix(base.Path, "/")

	return &Client{
		api:         api.NewClient(base, http.DefaultClient),
		model:       model,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Extract sends text upstream and returns the validated ParsedNote.
//
// An unparseable answer gets exactly one repair resubmission asking the
// model to fix its own output; still unparseable wraps ErrUpstream. A
// parseable answer that violates the field schema wraps ErrBadSchema and
// is never resubmitted: the same content would produce the same answer.
func (c *Client) Extract(ctx context.Context, text string) (models.ParsedNote, error) {
	if strings.TrimSpace(text) == "" {
		// No text can yield a titled note; classify like any other
		// unusable payload so the failure is journaled with a kind.
		return models.ParsedNote{}, fmt.Errorf("extract: empty note text: %w", apperr.ErrBadSchema)
	}

	raw, err := c.generate(ctx, buildPrompt(text))
	if err != nil {
		return models.ParsedNote{}, err
	}

	candidate := firstJSONBlock(raw)
	note, extras, perr := parseNote(candidate)
	if errors.Is(perr, errNotJSON) {
		c.logger.Warn("extract: answer not valid JSON, requesting repair",
			slog.String("model", c.model))
		raw, err = c.generate(ctx, repairPrompt(candidate))
		if err != nil {
			return models.ParsedNote{}, err
		}
		candidate = firstJSONBlock(raw)
		note, extras, perr = parseNote(candidate)
		if errors.Is(perr, errNotJSON) {
			return models.ParsedNote{}, fmt.Errorf("extract: unusable payload after repair: %w", apperr.ErrUpstream)
		}
	}
	if perr != nil {
		return models.ParsedNote{}, perr
	}
	if extras > 0 {
		c.logger.Warn("extract: model returned multiple sections, keeping first",
			slog.Int("dropped", extras))
	}
	return note, nil
}

// generate issues one logical generate request, retrying transient
// failures (network errors, 5xx) with exponential backoff up to
// maxAttempts. 4xx answers fail immediately. The configured timeout
// bounds the whole call including retries.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
		Format: json.RawMessage(noteSchemaJSON),
		Options: map[string]any{
			"temperature": 0.0,
			"num_ctx":     8192,
		},
	}

	var sb strings.Builder
	op := func() error {
		sb.Reset()
		err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
			sb.WriteString(resp.Response)
			return nil
		})
		if err != nil {
			var se api.StatusError
			if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("extract: generate: %v: %w", err, apperr.ErrUpstream)
	}
	return strings.TrimSpace(sb.String()), nil
}

// newBackOff returns the retry schedule for upstream calls. Kept short:
// the per-call timeout is the real bound.
func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	return bo
}
