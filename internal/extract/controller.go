package extract

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrent bounds in-flight completion calls during the fan-out.
const DefaultMaxConcurrent = 100

// Controller dispatches extraction requests with a fixed ceiling on
// concurrently outstanding calls. All requests complete or fail
// independently before Run returns; one request's failure never cancels
// its siblings.
type Controller struct {
	client *Client
	limit  int
}

// NewController builds a controller around the client. A non-positive limit
// falls back to DefaultMaxConcurrent.
func NewController(client *Client, limit int) *Controller {
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	return &Controller{client: client, limit: limit}
}

// Run dispatches every request and collects per-request outcomes, indexed to
// match reqs. Goroutines never return errors to the group, so a failed call
// is recorded in its outcome instead of cancelling the rest.
func (c *Controller) Run(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for i, req := range reqs {
		g.Go(func() error {
			needles, rejected, usage, err := c.client.Extract(gCtx, req)
			outcomes[i] = Outcome{
				Request:          req,
				Candidates:       needles,
				RejectedMismatch: rejected,
				Usage:            usage,
				Err:              err,
			}
			if err != nil {
				zap.L().Warn("extract: chunk failed",
					zap.Int("chunk", req.Index),
					zap.String("schema", req.Schema.Name),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}
