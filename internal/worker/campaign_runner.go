package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
	"github.com/ignite/outreach-orchestrator/internal/pkg/distlock"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
)

// RunStatus is the terminal status of one execution.
type RunStatus string

const (
	RunPaused    RunStatus = "PAUSED"
	RunAborted   RunStatus = "ABORTED"
	RunCompleted RunStatus = "COMPLETED"
	RunLocked    RunStatus = "LOCKED"
	RunError     RunStatus = "ERROR"
)

// ExecutionResult summarises one Execute call. It is always populated, even
// when the run failed part way.
type ExecutionResult struct {
	CampaignID string    `json:"campaign_id"`
	Status     RunStatus `json:"status"`
	Message    string    `json:"message,omitempty"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	Recovered  int       `json:"recovered"`
	Retryable  bool      `json:"retryable"`
	DurationMs int64     `json:"duration_ms"`
}

func (r *ExecutionResult) add(d domain.CounterDelta) {
	r.Processed += d.Processed
	r.Skipped += d.Skipped
	r.Errors += d.Errors
}

// Locker runs fn while holding the campaign's lock.
type Locker interface {
	WithLock(ctx context.Context, campaignID string, fn func(ctx context.Context) error) (distlock.AcquireResult, error)
}

// RunnerOptions configures a CampaignRunner. Zero values use defaults.
type RunnerOptions struct {
	// PrefetchRetries is the verifier retry budget inside the lookahead.
	PrefetchRetries int
	Now             func() time.Time
}

// CampaignRunner is the campaign execution loop. One Execute call advances
// one campaign while holding its lock; the lookahead slot is local to that
// call.
type CampaignRunner struct {
	campaigns       campaign.Repository
	leads           lead.Repository
	locker          Locker
	processor       *LeadProcessor
	recovery        *RecoveryScanner
	delays          *DelayCalculator
	collect         *Collectors
	prefetchRetries int
	now             func() time.Time
}

// NewCampaignRunner wires the loop. collect may be nil.
func NewCampaignRunner(
	campaigns campaign.Repository,
	leads lead.Repository,
	locker Locker,
	processor *LeadProcessor,
	recovery *RecoveryScanner,
	delays *DelayCalculator,
	collect *Collectors,
	opts RunnerOptions,
) *CampaignRunner {
	if opts.PrefetchRetries < 0 {
		opts.PrefetchRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if collect == nil {
		collect = NewCollectors(nil)
	}
	return &CampaignRunner{
		campaigns:       campaigns,
		leads:           leads,
		locker:          locker,
		processor:       processor,
		recovery:        recovery,
		delays:          delays,
		collect:         collect,
		prefetchRetries: opts.PrefetchRetries,
		now:             opts.Now,
	}
}

// Execute runs the campaign until it is paused, aborted or out of leads.
// If another worker holds the lock it returns LOCKED without touching any
// state. Failures, including panics, are reported as ERROR results.
func (r *CampaignRunner) Execute(ctx context.Context, campaignID string) ExecutionResult {
	start := r.now()
	res := ExecutionResult{CampaignID: campaignID}

	lockRes, err := r.locker.WithLock(ctx, campaignID, func(ctx context.Context) (runErr error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("campaign_execution_panic", "campaign_id", campaignID,
					"panic", fmt.Sprint(p), "stack", string(debug.Stack()))
				runErr = fmt.Errorf("panic: %v", p)
			}
		}()
		return r.run(ctx, campaignID, &res)
	})

	switch {
	case !lockRes.Acquired && err != nil:
		r.collect.LockAcquire.WithLabelValues("error").Inc()
		res.Status = RunError
		res.Message = err.Error()
		res.Retryable = apperrors.IsRetryable(err)
	case !lockRes.Acquired:
		r.collect.LockAcquire.WithLabelValues("locked").Inc()
		res.Status = RunLocked
		res.Message = lockRes.Message
	case err != nil:
		r.collect.LockAcquire.WithLabelValues("acquired").Inc()
		res.Status = RunError
		res.Message = err.Error()
		res.Retryable = apperrors.IsRetryable(err)
	default:
		r.collect.LockAcquire.WithLabelValues("acquired").Inc()
	}

	res.DurationMs = r.now().Sub(start).Milliseconds()
	r.collect.Executions.WithLabelValues(string(res.Status)).Inc()

	fields := []interface{}{
		"campaign_id", campaignID, "status", res.Status,
		"processed", res.Processed, "skipped", res.Skipped, "errors", res.Errors,
		"recovered", res.Recovered, "duration_ms", res.DurationMs,
	}
	if res.Status == RunError {
		logger.Error("campaign_execution_finished", append(fields, "error", res.Message)...)
	} else {
		logger.Info("campaign_execution_finished", fields...)
	}
	return res
}

// runnablePageSize is the List page size used to collect runnable campaigns.
const runnablePageSize = 100

// ExecuteRunnable executes every RUNNING campaign, then every QUEUED one,
// in turn. The ids are collected before the first execution starts.
func (r *CampaignRunner) ExecuteRunnable(ctx context.Context) ([]ExecutionResult, error) {
	var (
		ids  []string
		seen = make(map[string]bool)
	)
	for _, status := range []domain.CampaignStatus{domain.CampaignRunning, domain.CampaignQueued} {
		for offset := 0; ; offset += runnablePageSize {
			page, err := r.campaigns.List(ctx, campaign.ListFilter{Status: status, Limit: runnablePageSize, Offset: offset})
			if err != nil {
				return nil, apperrors.Database("worker.execute_runnable", err)
			}
			for _, c := range page {
				if !seen[c.ID] {
					seen[c.ID] = true
					ids = append(ids, c.ID)
				}
			}
			if len(page) < runnablePageSize {
				break
			}
		}
	}

	results := make([]ExecutionResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, r.Execute(ctx, id))
	}
	return results, nil
}

func (r *CampaignRunner) run(ctx context.Context, campaignID string, res *ExecutionResult) error {
	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return r.dbError("load campaign", err)
	}

	report, err := r.recovery.Scan(ctx, campaignID)
	if err != nil {
		return apperrors.Database("worker.recovery", err)
	}
	res.Recovered = report.Total()
	logger.Info("campaign_execution_started", "campaign_id", campaignID, "status", c.Status,
		"recovered", res.Recovered, "marked_sent", report.MarkedSent, "rolled_back", report.RolledBack)

	switch c.Status {
	case domain.CampaignPaused:
		res.Status, res.Message = RunPaused, "campaign is paused"
		return nil
	case domain.CampaignAborting:
		return r.finalizeAbort(ctx, campaignID, res)
	case domain.CampaignAborted:
		res.Status, res.Message = RunAborted, "campaign was aborted"
		return nil
	case domain.CampaignCompleted:
		res.Status, res.Message = RunCompleted, "campaign already completed"
		return nil
	case domain.CampaignDraft:
		return apperrors.Validation("worker.execute", "campaign %s is a draft and must be queued first", campaignID)
	}

	if err := checkContent(c); err != nil {
		return err
	}

	now := r.now()
	err = r.campaigns.Update(ctx, campaignID, campaign.UpdateFields{
		ExpectStatus:   []domain.CampaignStatus{domain.CampaignQueued, domain.CampaignRunning},
		Status:         campaignStatusPtr(domain.CampaignRunning),
		StartedAt:      &now,
		LastActivityAt: &now,
		ClearPausedAt:  true,
	})
	// A concurrent control-plane write is picked up by the loop's first
	// status read.
	if err != nil && !errors.Is(err, campaign.ErrInvalidTransition) {
		return r.dbError("mark running", err)
	}

	return r.loop(ctx, campaignID, res)
}

func (r *CampaignRunner) loop(ctx context.Context, campaignID string, res *ExecutionResult) error {
	var slot *prefetched

	for {
		c, err := r.campaigns.Get(ctx, campaignID)
		if err != nil {
			return r.dbError("reload campaign", err)
		}

		switch c.Status {
		case domain.CampaignPaused:
			res.Status, res.Message = RunPaused, "campaign paused"
			logger.Info("campaign_paused", "campaign_id", campaignID, "resume_position", c.ResumePosition)
			return nil
		case domain.CampaignAborting:
			return r.finalizeAbort(ctx, campaignID, res)
		case domain.CampaignAborted, domain.CampaignCompleted:
			res.Status = RunStatus(c.Status)
			return nil
		case domain.CampaignDraft:
			return apperrors.Validation("worker.execute", "campaign %s was moved back to draft", campaignID)
		}

		var (
			l   *domain.Lead
			pre *domain.VerificationResult
		)
		if slot != nil {
			l, pre = slot.lead, slot.verification
			slot = nil
		} else {
			l, err = r.leads.FindNext(ctx, campaignID)
			if errors.Is(err, lead.ErrNotFound) {
				requeued, rerr := r.requeueGreylisted(ctx, campaignID)
				if rerr != nil {
					return rerr
				}
				if requeued {
					continue
				}
				return r.complete(ctx, campaignID, res)
			}
			if err != nil {
				return r.dbError("find next lead", err)
			}
		}

		// The current lead always runs to a terminal status, even if ctx
		// is cancelled meanwhile.
		pr := r.processor.Process(context.WithoutCancel(ctx), c, l, pre)
		res.add(pr.Delta())

		empty, err := r.recordProgress(ctx, campaignID, pr.Delta())
		if err != nil {
			return err
		}
		if empty {
			requeued, err := r.requeueGreylisted(ctx, campaignID)
			if err != nil {
				return err
			}
			if !requeued {
				return r.complete(ctx, campaignID, res)
			}
		}

		fill, err := r.waitAndFill(ctx, c, r.delays.Next(c))
		if ferr := r.recordFill(ctx, campaignID, fill, res); ferr != nil {
			return ferr
		}
		if err != nil {
			// Not wrapped: a shutdown leaves the campaign RUNNING and resumable.
			return apperrors.Timeout("worker.execute", fmt.Errorf("interrupted during pacing delay: %v", err))
		}
		slot = fill.slot
	}
}

// recordProgress writes counters, activity time and the resume position in
// one campaign update. It reports whether the queue is now empty. The lead
// is already final, so the write is not abandoned on cancellation.
func (r *CampaignRunner) recordProgress(ctx context.Context, campaignID string, delta domain.CounterDelta) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	next, err := r.leads.FindNext(ctx, campaignID)
	empty := errors.Is(err, lead.ErrNotFound)
	if err != nil && !empty {
		return false, r.dbError("find next lead", err)
	}

	now := r.now()
	u := campaign.UpdateFields{Counters: delta, LastActivityAt: &now}
	if empty {
		u.ClearResumePosition = true
	} else {
		pos := next.QueuePosition
		u.ResumePosition = &pos
	}
	if err := r.campaigns.Update(ctx, campaignID, u); err != nil {
		return false, r.dbError("record progress", err)
	}
	return empty, nil
}

// requeueGreylisted gives due greylisted leads another pass once the queue
// has drained. It reports whether any lead went back on the queue.
func (r *CampaignRunner) requeueGreylisted(ctx context.Context, campaignID string) (bool, error) {
	n, err := r.recovery.RequeueDue(ctx, campaignID)
	if err != nil {
		return false, r.dbError("requeue greylisted leads", err)
	}
	return n > 0, nil
}

// recordFill books the leads the lookahead rejected.
func (r *CampaignRunner) recordFill(ctx context.Context, campaignID string, fill fillResult, res *ExecutionResult) error {
	if len(fill.rejected) == 0 {
		return nil
	}
	delta := fill.delta()
	res.add(delta)

	u := campaign.UpdateFields{Counters: delta}
	if fill.slot != nil {
		pos := fill.slot.lead.QueuePosition
		u.ResumePosition = &pos
	} else if next, err := r.leads.FindNext(context.WithoutCancel(ctx), campaignID); err == nil {
		pos := next.QueuePosition
		u.ResumePosition = &pos
	}
	// Counters are advisory; write them even if the wait was interrupted.
	if err := r.campaigns.Update(context.WithoutCancel(ctx), campaignID, u); err != nil {
		return r.dbError("record prefetch results", err)
	}
	return nil
}

func (r *CampaignRunner) complete(ctx context.Context, campaignID string, res *ExecutionResult) error {
	now := r.now()
	err := r.campaigns.Update(ctx, campaignID, campaign.UpdateFields{
		ExpectStatus:        []domain.CampaignStatus{domain.CampaignRunning, domain.CampaignQueued},
		Status:              campaignStatusPtr(domain.CampaignCompleted),
		CompletedAt:         &now,
		LastActivityAt:      &now,
		ClearResumePosition: true,
	})
	if errors.Is(err, campaign.ErrInvalidTransition) {
		return r.settle(ctx, campaignID, res)
	}
	if err != nil {
		return r.dbError("mark completed", err)
	}
	res.Status, res.Message = RunCompleted, "no more queued leads"
	logger.Info("campaign_completed", "campaign_id", campaignID)
	return nil
}

func (r *CampaignRunner) finalizeAbort(ctx context.Context, campaignID string, res *ExecutionResult) error {
	now := r.now()
	err := r.campaigns.Update(ctx, campaignID, campaign.UpdateFields{
		ExpectStatus:   []domain.CampaignStatus{domain.CampaignAborting},
		Status:         campaignStatusPtr(domain.CampaignAborted),
		CompletedAt:    &now,
		LastActivityAt: &now,
	})
	if errors.Is(err, campaign.ErrInvalidTransition) {
		return r.settle(ctx, campaignID, res)
	}
	if err != nil {
		return r.dbError("mark aborted", err)
	}
	res.Status, res.Message = RunAborted, "campaign aborted"
	logger.Info("campaign_aborted", "campaign_id", campaignID)
	return nil
}

// settle reports whatever status a concurrent control-plane write left.
func (r *CampaignRunner) settle(ctx context.Context, campaignID string, res *ExecutionResult) error {
	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return r.dbError("reload campaign", err)
	}
	switch c.Status {
	case domain.CampaignPaused:
		res.Status = RunPaused
	case domain.CampaignAborting:
		return r.finalizeAbort(ctx, campaignID, res)
	case domain.CampaignAborted:
		res.Status = RunAborted
	case domain.CampaignCompleted:
		res.Status = RunCompleted
	default:
		return fmt.Errorf("campaign %s changed to %s during finalization", campaignID, c.Status)
	}
	res.Message = "status changed by control plane"
	return nil
}

func (r *CampaignRunner) dbError(op string, err error) error {
	if errors.Is(err, campaign.ErrNotFound) {
		return apperrors.Validation("worker."+op, "campaign not found")
	}
	return apperrors.Database("worker."+op, err)
}

// checkContent rejects campaigns that cannot produce a message.
func checkContent(c *domain.Campaign) error {
	switch {
	case c.FromEmail == "":
		return apperrors.Configuration("worker.execute", "campaign %s has no from address", c.ID)
	case c.SubjectTemplate == "":
		return apperrors.Configuration("worker.execute", "campaign %s has no subject", c.ID)
	case c.BodyTemplate == "":
		return apperrors.Configuration("worker.execute", "campaign %s has no body", c.ID)
	}
	return nil
}

func campaignStatusPtr(s domain.CampaignStatus) *domain.CampaignStatus { return &s }
