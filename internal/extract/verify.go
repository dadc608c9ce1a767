package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fieldglass/needlefinder/internal/config"
	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/schema"
	"github.com/fieldglass/needlefinder/pkg/anthropic"
)

// verifyMaxTokens bounds the verification answer; one word is expected.
const verifyMaxTokens = 8

// Candidate pairs a needle with the chunk it was extracted from.
type Candidate struct {
	Needle model.Needle
	Chunk  string
}

// Verification is the per-needle verdict. A needle whose confirmation call
// failed is rejected with the failure recorded in Reason, so the caller can
// see why it was dropped rather than losing it silently.
type Verification struct {
	Needle   model.Needle
	Accepted bool
	Reason   string
	Usage    model.TokenUsage
}

// Verifier re-submits each candidate needle to the completion service and
// asks whether the source text supports it.
type Verifier struct {
	ai      anthropic.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	limit   int
}

// NewVerifier builds a verifier. Verification shares the extraction
// concurrency ceiling and rate limiter.
func NewVerifier(ai anthropic.Client, aiCfg config.AnthropicConfig, limit int, limiter *rate.Limiter) *Verifier {
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	verifyModel := aiCfg.VerifyModel
	if verifyModel == "" {
		verifyModel = aiCfg.Model
	}
	return &Verifier{
		ai:      ai,
		model:   verifyModel,
		timeout: time.Duration(aiCfg.TimeoutSecs) * time.Second,
		limiter: limiter,
		limit:   limit,
	}
}

// Verify judges every candidate and returns verdicts indexed to match
// candidates. Confirmation failures reject the needle with a reason.
func (v *Verifier) Verify(ctx context.Context, s schema.Schema, candidates []Candidate) []Verification {
	verdicts := make([]Verification, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit)

	systemBlocks := anthropic.BuildCachedSystemBlocks(buildVerifySystemPrompt(s))

	for i, cand := range candidates {
		g.Go(func() error {
			verdicts[i] = v.verifyOne(gCtx, systemBlocks, cand)
			return nil
		})
	}

	_ = g.Wait()
	return verdicts
}

func (v *Verifier) verifyOne(ctx context.Context, system []anthropic.SystemBlock, cand Candidate) Verification {
	verdict := Verification{Needle: cand.Needle}

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			verdict.Reason = fmt.Sprintf("verification aborted: %v", err)
			return verdict
		}
	}

	needleJSON, err := json.MarshalIndent(cand.Needle, "", "  ")
	if err != nil {
		verdict.Reason = fmt.Sprintf("verification encode failed: %v", err)
		return verdict
	}

	callCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	resp, err := v.ai.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     v.model,
		MaxTokens: verifyMaxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(verifyUserPrompt, RelevantText(cand.Chunk, cand.Needle, 3), needleJSON)},
		},
	})
	if err != nil {
		// Unverifiable defaults to rejected; the reason travels with the
		// verdict so the orchestration layer can report it.
		verdict.Reason = fmt.Sprintf("verification call failed: %v", err)
		zap.L().Warn("verify: confirmation call failed, rejecting needle", zap.Error(err))
		return verdict
	}
	verdict.Usage.InputTokens = int(resp.Usage.InputTokens)
	verdict.Usage.OutputTokens = int(resp.Usage.OutputTokens)

	switch strings.ToLower(strings.TrimSpace(resp.Text())) {
	case "true":
		verdict.Accepted = true
	case "false":
		verdict.Reason = "not supported by source text"
	default:
		verdict.Reason = fmt.Sprintf("unexpected verification answer %q", resp.Text())
	}
	return verdict
}

// RelevantText trims a chunk to the paragraphs around the needle's populated
// values, keeping contextParagraphs of context on each side. Paragraphs that
// mention none of the values are dropped. Falls back to the whole chunk when
// nothing matches.
func RelevantText(chunk string, needle model.Needle, contextParagraphs int) string {
	paragraphs := splitParagraphs(chunk)
	if len(paragraphs) == 0 {
		return chunk
	}

	keep := make([]bool, len(paragraphs))
	matched := false
	for _, val := range needle {
		if val.IsNull() {
			continue
		}
		needleText := strings.ToLower(val.Display())
		if needleText == "" {
			continue
		}
		for i, p := range paragraphs {
			if strings.Contains(strings.ToLower(p), needleText) {
				matched = true
				start := i - contextParagraphs
				if start < 0 {
					start = 0
				}
				end := i + contextParagraphs + 1
				if end > len(paragraphs) {
					end = len(paragraphs)
				}
				for j := start; j < end; j++ {
					keep[j] = true
				}
			}
		}
	}
	if !matched {
		return chunk
	}

	var parts []string
	for i, p := range paragraphs {
		if keep[i] {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	var out []string
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
