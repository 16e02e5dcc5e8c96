package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/httpretry"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
)

// MaxFillAttempts caps verification calls per delay window.
const MaxFillAttempts = 5

// prefetched is the loop's single lookahead slot. verification is nil when
// the lead still needs a verdict.
type prefetched struct {
	lead         *domain.Lead
	verification *domain.VerificationResult
}

// fillResult is what one lookahead pass produced: at most one lead for the
// next iteration, plus the leads it rejected along the way.
type fillResult struct {
	slot     *prefetched
	rejected []ProcessResult
	attempts int
}

func (f fillResult) delta() domain.CounterDelta {
	var d domain.CounterDelta
	for _, r := range f.rejected {
		d = d.Add(r.Delta())
	}
	return d
}

// fillBuffer pulls queued leads and verifies them until one is acceptable,
// the queue is empty, or MaxFillAttempts verifications were made. Rejected
// leads are finalized as they are found.
func (r *CampaignRunner) fillBuffer(ctx context.Context, c *domain.Campaign) fillResult {
	var res fillResult

	for res.attempts < MaxFillAttempts {
		if ctx.Err() != nil {
			return res
		}

		next, err := r.leads.FindNext(ctx, c.ID)
		if errors.Is(err, lead.ErrNotFound) {
			return res
		}
		if err != nil {
			logger.Warn("prefetch_find_failed", "campaign_id", c.ID, "error", err)
			return res
		}

		// Already verified (rolled back by recovery or buffered by a
		// previous run); the processor decides whether the verdict is fresh.
		if next.Status == domain.LeadVerified {
			res.slot = &prefetched{lead: next}
			return res
		}

		res.attempts++
		verdict, done, err := r.processor.Verify(ctx, c, next, r.prefetchRetries)
		if err != nil {
			// Hand the lead to the next iteration for a full-budget retry
			// instead of pulling it again here.
			res.slot = &prefetched{lead: next}
			return res
		}
		if done != nil {
			res.rejected = append(res.rejected, *done)
			continue
		}
		res.slot = &prefetched{lead: next, verification: verdict}
		return res
	}

	logger.Debug("prefetch_cap_reached", "campaign_id", c.ID, "attempts", res.attempts)
	return res
}

// waitAndFill sleeps for delay while running the lookahead. Both must finish
// before the next iteration. Returns an error only if ctx ends the wait.
func (r *CampaignRunner) waitAndFill(ctx context.Context, c *domain.Campaign, delay time.Duration) (fillResult, error) {
	var res fillResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpretry.Sleep(gctx, delay)
	})
	g.Go(func() error {
		res = r.fillBuffer(gctx, c)
		return nil
	})

	err := g.Wait()
	return res, err
}
