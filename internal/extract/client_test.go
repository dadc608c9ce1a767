package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fieldglass/needlefinder/internal/config"
	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/schema"
)

func testAnthropicConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		Model:       "claude-sonnet-4-5-20250929",
		VerifyModel: "claude-haiku-4-5-20251001",
		MaxTokens:   4096,
		TimeoutSecs: 5,
	}
}

func companySchema() schema.Schema {
	return schema.Schema{
		Name: "Company",
		Fields: []schema.Field{
			{Name: "name", Type: schema.TypeString},
			{Name: "founded_year", Type: schema.TypeInt},
		},
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare array", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced json", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around array", `Here are the results: [{"a":1}] Done.`, `[{"a":1}]`},
		{"object", `note {"items":[]} trailing`, `{"items":[]}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestParseCandidatesBareArray(t *testing.T) {
	items, err := parseCandidates(`[{"name":"Acme"},{"name":"Globex"}]`)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Acme", items[0]["name"])
}

func TestParseCandidatesItemsWrapper(t *testing.T) {
	items, err := parseCandidates(`{"items":[{"name":"Acme"}]}`)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestParseCandidatesEmptyArray(t *testing.T) {
	items, err := parseCandidates("```json\n[]\n```")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseCandidatesRejectsProse(t *testing.T) {
	_, err := parseCandidates("I could not find any records.")
	assert.Error(t, err)

	_, err = parseCandidates("")
	assert.Error(t, err)
}

func TestExtractConformsCandidates(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`[{"name":"Acme","founded_year":1998},{"name":"Globex"}]`), nil)

	client := NewClient(ai, testAnthropicConfig(), config.ExtractionConfig{}, nil)

	needles, rejected, usage, err := client.Extract(context.Background(), Request{
		Index:  0,
		Chunk:  "some text",
		Schema: companySchema(),
	})
	require.NoError(t, err)
	require.Len(t, needles, 2)
	assert.Zero(t, rejected)
	assert.Equal(t, model.Int(1998), needles[0]["founded_year"])
	assert.True(t, needles[1]["founded_year"].IsNull())
	assert.Equal(t, 100, usage.InputTokens)
	ai.AssertExpectations(t)
}

func TestExtractDropsNonConformingRecords(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`[{"name":"Acme","ceo":"Jane"},{"name":"Globex"}]`), nil)

	client := NewClient(ai, testAnthropicConfig(), config.ExtractionConfig{}, nil)

	needles, rejected, _, err := client.Extract(context.Background(), Request{Schema: companySchema()})
	require.NoError(t, err)
	assert.Len(t, needles, 1)
	assert.Equal(t, 1, rejected)
}

func TestExtractUnparseableResponseIsMismatch(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("no records here"), nil)

	client := NewClient(ai, testAnthropicConfig(), config.ExtractionConfig{}, nil)

	_, _, _, err := client.Extract(context.Background(), Request{Schema: companySchema()})
	require.Error(t, err)
	assert.True(t, schema.IsMismatch(err))
}

func TestExtractPropagatesCallErrors(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("api unavailable"))

	client := NewClient(ai, testAnthropicConfig(), config.ExtractionConfig{}, nil)

	_, _, _, err := client.Extract(context.Background(), Request{Schema: companySchema()})
	require.Error(t, err)
	assert.False(t, schema.IsMismatch(err))
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-1))
	require.NotNil(t, NewLimiter(2.5))
	assert.Equal(t, 2, NewLimiter(2.5).Burst())
}
