package extract

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fieldglass/needlefinder/internal/config"
	"github.com/fieldglass/needlefinder/internal/model"
)

func TestControllerBoundsConcurrency(t *testing.T) {
	for _, limit := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("limit_%d", limit), func(t *testing.T) {
			var inFlight, peak atomic.Int64

			ai := &mockAnthropicClient{}
			ai.On("CreateMessage", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					cur := inFlight.Add(1)
					for {
						old := peak.Load()
						if cur <= old || peak.CompareAndSwap(old, cur) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inFlight.Add(-1)
				}).
				Return(textResponse(`[]`), nil)

			client := NewClient(ai, testAnthropicConfig(), config.ExtractionConfig{}, nil)
			controller := NewController(client, limit)

			reqs := make([]Request, limit*4)
			for i := range reqs {
				reqs[i] = Request{Index: i, Chunk: "chunk", Schema: companySchema()}
			}

			outcomes := controller.Run(context.Background(), reqs)
			require.Len(t, outcomes, len(reqs))
			assert.LessOrEqual(t, peak.Load(), int64(limit))
			assert.Greater(t, peak.Load(), int64(0))
		})
	}
}

func TestControllerIsolatesFailures(t *testing.T) {
	// First request returns a response the parser rejects; the second still
	// completes.
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("not json"), nil).Once()
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`[{"name":"Acme"}]`), nil)

	controller := NewController(NewClient(ai, testAnthropicConfig(), config.ExtractionConfig{}, nil), 1)
	outcomes := controller.Run(context.Background(), []Request{
		{Index: 0, Chunk: "a", Schema: companySchema()},
		{Index: 1, Chunk: "b", Schema: companySchema()},
	})

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, model.String("Acme"), outcomes[1].Candidates[0]["name"])
}

func TestControllerDefaultLimit(t *testing.T) {
	c := NewController(nil, 0)
	assert.Equal(t, DefaultMaxConcurrent, c.limit)

	c = NewController(nil, -5)
	assert.Equal(t, DefaultMaxConcurrent, c.limit)
}

func TestControllerEmptyRequests(t *testing.T) {
	controller := NewController(NewClient(&mockAnthropicClient{}, testAnthropicConfig(), config.ExtractionConfig{}, nil), 4)
	outcomes := controller.Run(context.Background(), nil)
	assert.Empty(t, outcomes)
}
