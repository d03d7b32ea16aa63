package cloneengine

import (
	"context"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/ids"
	"github.com/mahzen/engine/logging"
	"github.com/mahzen/engine/signalbus"
)

// Start creates and launches a clone job: it inserts a new pending
// clone job row, derives is_same_target from whether source and
// destination resolve to the same target, opens a Run signal, and
// launches the job's background goroutine. It returns the new job id
// immediately; the goroutine reports its outcome only through the
// catalog store and the process log.
func (e *Engine) Start(ctx context.Context, job catalog.CloneJob) (string, error) {
	job.ID = ids.New()
	job.Status = catalog.CloneStatusPending
	job.IsSameTarget = job.SourceTargetID == job.DestTargetID
	now := time.Now().Unix()
	job.CreatedAt, job.UpdatedAt = now, now

	if err := e.Store.InsertCloneJob(job); err != nil {
		return "", err
	}
	e.spawn(ctx, job.ID)
	return job.ID, nil
}

// Pause implements clone_pause: it sends Pause to the job's live signal.
// It is a no-op if the job has no running goroutine (already paused,
// cancelled, or terminal).
func (e *Engine) Pause(jobID string) bool {
	return e.Signals.Send(jobID, signalbus.ClonePause)
}

// Resume implements clone_resume: any items left "active" by a prior
// crash or pause move back to "pending", then either the existing
// goroutine is sent Run (if the job is merely paused) or a fresh
// goroutine is spawned (if the process restarted since the job paused).
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	if _, err := e.Store.ResetActiveItems(jobID); err != nil {
		return err
	}
	if e.Signals.Send(jobID, signalbus.CloneRun) {
		return nil
	}
	e.spawn(ctx, jobID)
	return nil
}

// Cancel implements clone_cancel: it sends Cancel to the job's live
// signal so its goroutine unwinds to the cancelled terminal status. If
// no goroutine is listening (the job already finished or the process
// restarted since), it stamps the status directly.
func (e *Engine) Cancel(jobID string) error {
	if e.Signals.Send(jobID, signalbus.CloneCancel) {
		return nil
	}
	return e.Store.CompleteCloneJob(jobID, catalog.CloneStatusCancelled)
}

// RetryFailed implements clone_retry_failed: failed items move back to
// pending with their error cleared, and a fresh goroutine is always
// spawned (a job with failed items but no pending ones has already
// reached its completed terminal status, so no existing signal can be
// live for it).
func (e *Engine) RetryFailed(ctx context.Context, jobID string) error {
	if _, err := e.Store.ResetFailedItems(jobID); err != nil {
		return err
	}
	e.spawn(ctx, jobID)
	return nil
}

// spawn launches Run in its own goroutine, logging a final error rather
// than propagating it; the caller of a control verb gets an immediate
// acknowledgement, not the job's eventual outcome.
func (e *Engine) spawn(ctx context.Context, jobID string) {
	go func() {
		if err := e.Run(ctx, jobID); err != nil {
			log := logging.WithJob(jobID)
			log.Error().Err(err).Msg("clone job goroutine exited with error")
		}
	}()
}
