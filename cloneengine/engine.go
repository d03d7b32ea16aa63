// Package cloneengine drives a single clone job from creation to a
// terminal status: enumerating the source prefix, persisting the item
// list, then copying items in bounded-concurrency batches while honoring
// pause/resume/cancel signals delivered through a signalbus.CloneBus.
package cloneengine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/logging"
	"github.com/mahzen/engine/s3gateway"
	"github.com/mahzen/engine/signalbus"
)

// Concurrency and batching constants. Same-target copies are server-side
// (CopyObject/UploadPartCopy) and cheap on the caller, so they run at a
// higher fan-out than cross-target copies, which pull every byte through
// this process.
const (
	sameTargetConcurrency  = 20
	crossTargetConcurrency = 4
	batchSize              = 100
	progressThrottle       = 200 * time.Millisecond
)

// errCancelled unwinds runInner when a Cancel signal arrives; it is never
// returned to the caller of Run.
var errCancelled = errors.New("cloneengine: job cancelled")

// Store is the subset of catalog.Store the engine needs. catalog.Store
// satisfies this interface; tests substitute a hand-rolled fake.
type Store interface {
	InsertCloneJob(job catalog.CloneJob) error
	GetCloneJob(id string) (catalog.CloneJob, error)
	UpdateCloneJobStatus(id, status string) error
	UpdateCloneJobProgress(id string, completed, failed, skipped, transferredBytes int64) error
	CompleteCloneJob(id, status string) error
	SaveEnumerationState(id, token string, totalItems, totalBytes int64, complete bool) error
	InsertItemsBatch(items []catalog.CloneJobItem) error
	ListPendingItems(jobID string, limit int64) ([]catalog.CloneJobItem, error)
	UpdateItemStatus(id, status, errorMessage string) error
	CountItemsByStatus(jobID string) (catalog.ItemStatusCounts, error)
	ResetActiveItems(jobID string) (int64, error)
	ResetFailedItems(jobID string) (int64, error)
}

// Gateway is the subset of s3gateway.Gateway the engine needs against one
// target. *s3gateway.Gateway satisfies this interface.
type Gateway interface {
	ListRecursivePage(ctx context.Context, bucket, prefix, continuationToken string) (s3gateway.ObjectListPage, error)
	HeadObject(ctx context.Context, bucket, key string) (s3gateway.ObjectEntry, error)
	CopyObject(ctx context.Context, srcBucket, srcKey, destBucket, destKey string, size int64) error
	GetObjectStream(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	PutStream(ctx context.Context, bucket, key string, body io.Reader, size int64) error
}

// GatewayResolver returns the Gateway bound to a target id.
type GatewayResolver func(targetID string) (Gateway, error)

// Engine runs clone jobs against a Store, resolving source/dest gateways
// through Gateways, and listening for control signals on Signals.
type Engine struct {
	Store    Store
	Gateways GatewayResolver
	Signals  *signalbus.CloneBus

	// TempDir is the scratch directory cross-target copies stage through
	// (download-then-upload). Defaults to os.TempDir() when empty.
	TempDir string
}

// Run drives jobID to completion, pause, or cancellation. It registers a
// fresh signal with the engine's CloneBus and removes it when the job
// stops running for any reason; a caller sends further control signals
// (clone_pause, clone_cancel) to the same bus, keyed by jobID.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	w := e.Signals.Start(jobID)
	defer e.Signals.Remove(jobID)

	log := logging.WithJob(jobID)

	err := e.runInner(ctx, jobID, w)
	if errors.Is(err, errCancelled) {
		if err := e.Store.CompleteCloneJob(jobID, catalog.CloneStatusCancelled); err != nil {
			log.Error().Err(err).Msg("failed to persist cancelled status")
			return err
		}
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("clone job failed")
		if completeErr := e.Store.CompleteCloneJob(jobID, catalog.CloneStatusFailed); completeErr != nil {
			log.Error().Err(completeErr).Msg("failed to persist failed status")
		}
		return err
	}
	return nil
}

func (e *Engine) runInner(ctx context.Context, jobID string, w *signalbus.Watch[signalbus.CloneSignal]) error {
	job, err := e.Store.GetCloneJob(jobID)
	if err != nil {
		return err
	}

	if !job.EnumerationComplete {
		if err := e.Store.UpdateCloneJobStatus(jobID, catalog.CloneStatusEnumerating); err != nil {
			return err
		}
		if err := e.enumerate(ctx, job, w); err != nil {
			return err
		}
		job, err = e.Store.GetCloneJob(jobID)
		if err != nil {
			return err
		}
	}

	if err := e.Store.UpdateCloneJobStatus(jobID, catalog.CloneStatusRunning); err != nil {
		return err
	}
	return e.execute(ctx, job, w)
}

// checkSignal blocks while the job is paused, resuming the job to
// runningStatus once a Run signal arrives, and unwinds with errCancelled
// on a Cancel signal. It returns immediately if the job is currently
// running.
func (e *Engine) checkSignal(ctx context.Context, jobID string, w *signalbus.Watch[signalbus.CloneSignal], runningStatus string) error {
	for {
		switch w.Value() {
		case signalbus.CloneCancel:
			return errCancelled
		case signalbus.ClonePause:
			if err := e.Store.UpdateCloneJobStatus(jobID, catalog.CloneStatusPaused); err != nil {
				return err
			}
			v, err := w.Changed(ctx)
			if err != nil {
				return err
			}
			if v == signalbus.CloneCancel {
				return errCancelled
			}
			if v == signalbus.CloneRun {
				if err := e.Store.UpdateCloneJobStatus(jobID, runningStatus); err != nil {
					return err
				}
				return nil
			}
		default: // CloneRun
			return nil
		}
	}
}
