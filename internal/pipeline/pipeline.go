// Package pipeline orchestrates a full extraction run: preprocess, chunk,
// fan out completion calls, verify, filter, and write results.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fieldglass/needlefinder/internal/config"
	"github.com/fieldglass/needlefinder/internal/extract"
	"github.com/fieldglass/needlefinder/internal/filter"
	"github.com/fieldglass/needlefinder/internal/haystack"
	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/output"
	"github.com/fieldglass/needlefinder/internal/schema"
	"github.com/fieldglass/needlefinder/internal/store"
	"github.com/fieldglass/needlefinder/pkg/anthropic"
)

// Options selects what a run extracts and how its results are handled.
type Options struct {
	Schema         schema.Schema
	Input          string // haystack origin recorded on the run (path or "inline")
	Text           string
	Examples       []string
	RemoveDialogue bool
	Verify         bool

	// OutputDir and Formats override the configured defaults when set.
	// SkipWrite suppresses file output entirely (serve mode).
	OutputDir string
	Formats   []string
	SkipWrite bool
}

// Pipeline wires the extraction stages to a completion client and run store.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	ai    anthropic.Client
}

// New creates a Pipeline.
func New(cfg *config.Config, st store.Store, ai anthropic.Client) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, ai: ai}
}

// Run executes one extraction run end to end and returns the completed run
// record. A nil error means the run reached the written state, even when
// zero needles survived.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.Run, error) {
	log := zap.L().With(zap.String("schema", opts.Schema.Name), zap.String("input", opts.Input))
	log.Info("pipeline: starting run")
	start := time.Now()

	run, err := p.store.CreateRun(ctx, opts.Schema.Name, opts.Input)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}
	fail := func(cause error) (*model.Run, error) {
		if failErr := p.store.FailRun(ctx, run.ID, cause); failErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(failErr))
		}
		return nil, cause
	}

	result := &model.RunResult{SchemaName: opts.Schema.Name}

	// Preprocess.
	text := opts.Text
	if opts.RemoveDialogue {
		before := len(text)
		text = haystack.RemoveDialogue(text)
		log.Info("pipeline: dialogue removed", zap.Int("bytes_before", before), zap.Int("bytes_after", len(text)))
	}
	setStatus(model.RunStatusPreprocessed)

	// Chunk.
	chunks := haystack.Chunk(text, p.cfg.Extraction.ChunkTokens)
	result.Chunks = len(chunks)
	log.Info("pipeline: chunked haystack", zap.Int("chunks", len(chunks)))

	// Fan out extraction.
	setStatus(model.RunStatusExtracting)
	limiter := extract.NewLimiter(p.cfg.Anthropic.RequestsPerSecond)
	client := extract.NewClient(p.ai, p.cfg.Anthropic, p.cfg.Extraction, limiter)
	controller := extract.NewController(client, p.cfg.Extraction.MaxConcurrent)

	reqs := make([]extract.Request, len(chunks))
	for i, chunk := range chunks {
		reqs[i] = extract.Request{
			Index:    i,
			Chunk:    chunk,
			Schema:   opts.Schema,
			Examples: opts.Examples,
		}
	}
	outcomes := controller.Run(ctx, reqs)

	var candidates []extract.Candidate
	for _, out := range outcomes {
		result.TokenUsage.Add(out.Usage)
		result.RejectedMismatch += out.RejectedMismatch
		if out.Err != nil {
			// A mismatched response means the chunk yielded no needles,
			// not that the request failed.
			if schema.IsMismatch(out.Err) {
				result.RejectedMismatch++
				continue
			}
			result.FailedRequests++
			continue
		}
		for _, n := range out.Candidates {
			candidates = append(candidates, extract.Candidate{Needle: n, Chunk: out.Request.Chunk})
		}
	}
	result.Candidates = len(candidates)
	if len(reqs) > 0 && result.FailedRequests == len(reqs) {
		return fail(eris.Errorf("pipeline: all %d extraction requests failed", len(reqs)))
	}

	// Verify.
	needles := make([]model.Needle, 0, len(candidates))
	if opts.Verify && len(candidates) > 0 {
		setStatus(model.RunStatusVerifying)
		verifier := extract.NewVerifier(p.ai, p.cfg.Anthropic, p.cfg.Extraction.MaxConcurrent, limiter)
		for _, verdict := range verifier.Verify(ctx, opts.Schema, candidates) {
			result.VerifyTokenUsage.Add(verdict.Usage)
			if !verdict.Accepted {
				result.RejectedUnverified++
				log.Debug("pipeline: needle rejected by verification", zap.String("reason", verdict.Reason))
				continue
			}
			needles = append(needles, verdict.Needle)
		}
	} else {
		for _, cand := range candidates {
			needles = append(needles, cand.Needle)
		}
	}

	// Filter.
	setStatus(model.RunStatusFiltering)
	needles, stats := filter.Apply(needles, p.cfg.Filter.MinPopulatedFraction)
	result.RejectedInsufficient = stats.Insufficient
	result.RejectedDuplicate = stats.Duplicates
	result.Needles = needles

	// Write.
	if !opts.SkipWrite {
		dir := opts.OutputDir
		if dir == "" {
			dir = p.cfg.Output.Dir
		}
		formats := opts.Formats
		if len(formats) == 0 {
			formats = p.cfg.Output.Formats
		}
		paths, err := output.NewWriter(dir).Write(opts.Schema, needles, formats, start)
		if err != nil {
			return fail(eris.Wrap(err, "pipeline: write output"))
		}
		result.OutputPaths = paths
	}

	result.DurationMS = time.Since(start).Milliseconds()
	if err := p.store.CompleteRun(ctx, run.ID, result); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}

	usage := anthropic.TokenUsage{
		InputTokens:  int64(result.TokenUsage.InputTokens),
		OutputTokens: int64(result.TokenUsage.OutputTokens),
	}
	usage.LogCost(p.cfg.Anthropic.Model, "extraction run")
	if verifyUsage := result.VerifyTokenUsage; verifyUsage != (model.TokenUsage{}) {
		verifyModel := p.cfg.Anthropic.VerifyModel
		if verifyModel == "" {
			verifyModel = p.cfg.Anthropic.Model
		}
		vu := anthropic.TokenUsage{
			InputTokens:  int64(verifyUsage.InputTokens),
			OutputTokens: int64(verifyUsage.OutputTokens),
		}
		vu.LogCost(verifyModel, "verification")
	}
	log.Info("pipeline: run complete",
		zap.Int("needles", len(result.Needles)),
		zap.Int("candidates", result.Candidates),
		zap.Int("failed_requests", result.FailedRequests),
		zap.Int64("duration_ms", result.DurationMS),
	)

	run.Status = model.RunStatusWritten
	run.Result = result
	run.UpdatedAt = time.Now().UTC()
	return run, nil
}
