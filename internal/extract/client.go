// Package extract issues completion calls against a haystack chunk and turns
// the responses into schema-conforming needles.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fieldglass/needlefinder/internal/config"
	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/resilience"
	"github.com/fieldglass/needlefinder/internal/schema"
	"github.com/fieldglass/needlefinder/pkg/anthropic"
)

// Request is one unit of extraction work: a text chunk plus the schema and
// optional example needles guiding the model.
type Request struct {
	Index    int
	Chunk    string
	Schema   schema.Schema
	Examples []string
}

// Outcome is the per-request result: candidates on success, a typed error on
// failure. Requests fail independently.
type Outcome struct {
	Request          Request
	Candidates       []model.Needle
	RejectedMismatch int
	Usage            model.TokenUsage
	Err              error
}

// Client wraps a single extraction call to the completion service.
type Client struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewClient builds an extraction client from configuration. The limiter may
// be nil for unpaced calls.
func NewClient(ai anthropic.Client, aiCfg config.AnthropicConfig, exCfg config.ExtractionConfig, limiter *rate.Limiter) *Client {
	return &Client{
		ai:        ai,
		model:     aiCfg.Model,
		maxTokens: aiCfg.MaxTokens,
		timeout:   time.Duration(aiCfg.TimeoutSecs) * time.Second,
		limiter:   limiter,
		retry:     retryConfig(exCfg.Retry, "anthropic", "extract"),
	}
}

// NewLimiter builds a shared request pacer. Returns nil when rps is zero or
// negative, meaning unlimited.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// retryConfig converts settings into a resilience policy.
func retryConfig(cfg config.RetryConfig, service, operation string) resilience.RetryConfig {
	rc := resilience.NoRetry()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMS > 0 {
		rc.InitialBackoff = time.Duration(cfg.InitialBackoffMS) * time.Millisecond
	}
	if cfg.MaxBackoffMS > 0 {
		rc.MaxBackoff = time.Duration(cfg.MaxBackoffMS) * time.Millisecond
	}
	rc.OnRetry = resilience.RetryLogger(service, operation)
	return rc
}

// Extract issues one completion call for the request and returns the
// schema-conforming candidates. Individually malformed records are dropped
// and counted; a wholly unparseable response is a schema.MismatchError.
func (c *Client) Extract(ctx context.Context, req Request) ([]model.Needle, int, model.TokenUsage, error) {
	var usage model.TokenUsage

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, usage, eris.Wrap(err, "extract: rate limit wait")
		}
	}

	msgReq := anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(buildExtractSystemPrompt(req.Schema, req.Examples)),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(extractUserPrompt, req.Chunk)},
		},
	}

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return c.ai.CreateMessage(callCtx, msgReq)
	})
	if err != nil {
		return nil, 0, usage, eris.Wrapf(err, "extract: chunk %d", req.Index)
	}

	usage.InputTokens = int(resp.Usage.InputTokens)
	usage.OutputTokens = int(resp.Usage.OutputTokens)

	items, err := parseCandidates(resp.Text())
	if err != nil {
		return nil, 0, usage, &schema.MismatchError{
			Schema: req.Schema.Name,
			Reason: err.Error(),
		}
	}

	var needles []model.Needle
	rejected := 0
	for _, item := range items {
		needle, err := req.Schema.Conform(item)
		if err != nil {
			rejected++
			zap.L().Warn("extract: dropping non-conforming record",
				zap.Int("chunk", req.Index),
				zap.String("schema", req.Schema.Name),
				zap.Error(err),
			)
			continue
		}
		needles = append(needles, needle)
	}
	return needles, rejected, usage, nil
}

// parseCandidates decodes the model response into raw record maps. Accepts a
// bare JSON array or an object with an "items" array, with or without
// markdown fences.
func parseCandidates(text string) ([]map[string]any, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()

	switch cleaned[0] {
	case '[':
		var items []map[string]any
		if err := dec.Decode(&items); err != nil {
			return nil, eris.Wrap(err, "decode record array")
		}
		return items, nil
	case '{':
		var wrapper struct {
			Items []map[string]any `json:"items"`
		}
		if err := dec.Decode(&wrapper); err != nil {
			return nil, eris.Wrap(err, "decode record object")
		}
		if wrapper.Items == nil {
			return nil, eris.New("object response missing items array")
		}
		return wrapper.Items, nil
	default:
		return nil, eris.Errorf("response is not JSON: %.60s", cleaned)
	}
}

// cleanJSON extracts a JSON payload from text that may contain markdown
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	text = strings.TrimSpace(text)

	// Slice to the outermost JSON payload, preferring an array.
	arrStart := strings.Index(text, "[")
	objStart := strings.Index(text, "{")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			return strings.TrimSpace(text[arrStart : end+1])
		}
	}
	if objStart >= 0 {
		if end := strings.LastIndex(text, "}"); end > objStart {
			return strings.TrimSpace(text[objStart : end+1])
		}
	}
	return text
}
