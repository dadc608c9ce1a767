package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fieldglass/needlefinder/internal/model"
)

func TestVerifyAcceptsConfirmedNeedles(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("true"), nil)

	v := NewVerifier(ai, testAnthropicConfig(), 4, nil)
	verdicts := v.Verify(context.Background(), companySchema(), []Candidate{
		{Needle: model.Needle{"name": model.String("Acme")}, Chunk: "Acme was founded."},
	})

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Accepted)
	assert.Empty(t, verdicts[0].Reason)
	assert.Equal(t, model.TokenUsage{InputTokens: 100, OutputTokens: 20}, verdicts[0].Usage)
}

func TestVerifyRejectsDeniedNeedles(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("false"), nil)

	v := NewVerifier(ai, testAnthropicConfig(), 4, nil)
	verdicts := v.Verify(context.Background(), companySchema(), []Candidate{
		{Needle: model.Needle{"name": model.String("Acme")}, Chunk: "unrelated text"},
	})

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Accepted)
	assert.Equal(t, "not supported by source text", verdicts[0].Reason)
}

func TestVerifyCallFailureRejectsWithReason(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("service unavailable"))

	v := NewVerifier(ai, testAnthropicConfig(), 4, nil)
	verdicts := v.Verify(context.Background(), companySchema(), []Candidate{
		{Needle: model.Needle{"name": model.String("Acme")}, Chunk: "text"},
	})

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Accepted)
	assert.Contains(t, verdicts[0].Reason, "verification call failed")
}

func TestVerifyUnexpectedAnswerRejects(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("maybe?"), nil)

	v := NewVerifier(ai, testAnthropicConfig(), 4, nil)
	verdicts := v.Verify(context.Background(), companySchema(), []Candidate{
		{Needle: model.Needle{"name": model.String("Acme")}, Chunk: "text"},
	})

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Accepted)
	assert.Contains(t, verdicts[0].Reason, "unexpected verification answer")
}

func TestVerifierFallsBackToPrimaryModel(t *testing.T) {
	cfg := testAnthropicConfig()
	cfg.VerifyModel = ""
	v := NewVerifier(&mockAnthropicClient{}, cfg, 0, nil)
	assert.Equal(t, cfg.Model, v.model)
	assert.Equal(t, DefaultMaxConcurrent, v.limit)
}

func TestRelevantTextKeepsMatchingParagraphs(t *testing.T) {
	chunk := "Intro paragraph.\n\nAcme Corp builds widgets.\n\nMiddle filler.\n\nAnother topic entirely.\n\nClosing notes."
	needle := model.Needle{"name": model.String("Acme Corp")}

	out := RelevantText(chunk, needle, 1)
	assert.Contains(t, out, "Acme Corp builds widgets.")
	assert.Contains(t, out, "Intro paragraph.")  // one paragraph of context before
	assert.Contains(t, out, "Middle filler.")    // one paragraph of context after
	assert.NotContains(t, out, "Closing notes.") // outside the window
}

func TestRelevantTextFallsBackToWholeChunk(t *testing.T) {
	chunk := "Nothing here mentions it.\n\nNor here."
	needle := model.Needle{"name": model.String("Acme")}
	assert.Equal(t, chunk, RelevantText(chunk, needle, 1))
}

func TestRelevantTextCaseInsensitive(t *testing.T) {
	chunk := "first\n\nTHE ACME CORP STORY\n\nlast"
	needle := model.Needle{"name": model.String("acme corp")}
	out := RelevantText(chunk, needle, 0)
	assert.Equal(t, "THE ACME CORP STORY", out)
}
