package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// Replay hands stored events to h in order, at most perSecond events per
// second. perSecond <= 0 replays without pacing.
func Replay(ctx context.Context, stored []*events.AgentEvent, perSecond float64, h Handler) error {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, event := range stored {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := h(ctx, event); err != nil {
			return fmt.Errorf("event %d (%s): %w", i+1, event.Type, err)
		}
	}
	return nil
}
