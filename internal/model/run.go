package model

import "time"

// RunStatus tracks a run through its lifecycle. Transitions are linear:
// loaded → preprocessed → extracting → verifying (optional) → filtering →
// written, with failed as the terminal error state.
type RunStatus string

const (
	RunStatusLoaded       RunStatus = "loaded"
	RunStatusPreprocessed RunStatus = "preprocessed"
	RunStatusExtracting   RunStatus = "extracting"
	RunStatusVerifying    RunStatus = "verifying"
	RunStatusFiltering    RunStatus = "filtering"
	RunStatusWritten      RunStatus = "written"
	RunStatusFailed       RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusWritten || s == RunStatusFailed
}

// Run is the persisted record of one extraction run.
type Run struct {
	ID         string     `json:"id"`
	SchemaName string     `json:"schema_name"`
	Input      string     `json:"input"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult is the final output of a run: the ordered set of accepted needles
// plus bookkeeping counters.
type RunResult struct {
	SchemaName           string     `json:"schema_name"`
	Needles              []Needle   `json:"needles"`
	Chunks               int        `json:"chunks"`
	Candidates           int        `json:"candidates"`
	FailedRequests       int        `json:"failed_requests"`
	RejectedMismatch     int        `json:"rejected_mismatch"`
	RejectedInsufficient int        `json:"rejected_insufficient"`
	RejectedDuplicate    int        `json:"rejected_duplicate"`
	RejectedUnverified   int        `json:"rejected_unverified"`
	TokenUsage           TokenUsage `json:"token_usage"`
	VerifyTokenUsage     TokenUsage `json:"verify_token_usage"`
	OutputPaths          []string   `json:"output_paths,omitempty"`
	DurationMS           int64      `json:"duration_ms"`
}

// TokenUsage aggregates token consumption across completion calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
