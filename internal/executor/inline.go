package executor

import (
	"context"

	"github.com/davidbz/soundgraph/internal/domain"
)

// Inline runs tasks synchronously on the calling goroutine. The cluster command uses it to
// compute a clustering in the foreground.
type Inline struct{}

// Dispatch runs task immediately.
func (Inline) Dispatch(ctx context.Context, _ string, task domain.Task) {
	_ = task(ctx)
}

// DispatchChunked runs chunks in order, then join with the first chunk error.
func (Inline) DispatchChunked(ctx context.Context, _ string, chunks []domain.Task, join domain.Join) {
	var first error
	for _, chunk := range chunks {
		if err := chunk(ctx); err != nil && first == nil {
			first = err
		}
	}
	_ = join(ctx, first)
}
