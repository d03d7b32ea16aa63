package cloneengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/ids"
	"github.com/mahzen/engine/logging"
	"github.com/mahzen/engine/s3gateway"
	"github.com/mahzen/engine/signalbus"
)

// execute drains clone_job_items in pending order, batchSize at a time.
// Items within a batch run concurrently, bounded by the target pair's
// concurrency limit; the next batch starts only after every item in the
// current one has reached a terminal status, matching the
// enumerate-then-drain contract the catalog's checkpoint columns assume.
func (e *Engine) execute(ctx context.Context, job catalog.CloneJob, w *signalbus.Watch[signalbus.CloneSignal]) error {
	source, err := e.Gateways(job.SourceTargetID)
	if err != nil {
		return err
	}
	dest, err := e.Gateways(job.DestTargetID)
	if err != nil {
		return err
	}

	concurrency := crossTargetConcurrency
	if job.IsSameTarget {
		concurrency = sameTargetConcurrency
	}

	log := logging.WithJob(job.ID)
	lastEmit := time.Now().Add(-progressThrottle)

	for {
		if err := e.checkSignal(ctx, job.ID, w, catalog.CloneStatusRunning); err != nil {
			return err
		}

		items, err := e.Store.ListPendingItems(job.ID, batchSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return e.finishIfDrained(job.ID)
		}

		e.processBatch(ctx, job, items, source, dest, concurrency)

		counts, err := e.Store.CountItemsByStatus(job.ID)
		if err != nil {
			return err
		}
		if err := e.Store.UpdateCloneJobProgress(job.ID, counts.Completed, counts.Failed, counts.Skipped, counts.TotalTransferredBytes); err != nil {
			return err
		}

		if time.Since(lastEmit) >= progressThrottle {
			log.Info().
				Int64("completed", counts.Completed).
				Int64("failed", counts.Failed).
				Int64("skipped", counts.Skipped).
				Int64("transferred_bytes", counts.TotalTransferredBytes).
				Msg("clone progress")
			lastEmit = time.Now()
		}
	}
}

// finishIfDrained marks the job completed once no pending items remain.
// Per the terminal-status decision, a job with failed items still ends as
// completed; failures are visible per-item, not as a job-level failure.
func (e *Engine) finishIfDrained(jobID string) error {
	return e.Store.CompleteCloneJob(jobID, catalog.CloneStatusCompleted)
}

// processBatch runs every item's copy concurrently, bounded by concurrency,
// then sweeps for any item whose goroutine never reached a terminal status
// update. A panic inside processItem is recovered per-goroutine and fails
// just that item; the sweep is the safety net for anything that still
// slips through.
func (e *Engine) processBatch(ctx context.Context, job catalog.CloneJob, items []catalog.CloneJobItem, source, dest Gateway, concurrency int) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	processed := make(map[string]struct{}, len(items))

	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					e.failItem(item.ID, fmt.Errorf("panic: %v", r))
				}
				mu.Lock()
				processed[item.ID] = struct{}{}
				mu.Unlock()
			}()
			e.processItem(ctx, job, item, source, dest)
		}()
	}
	wg.Wait()

	for _, item := range items {
		if _, ok := processed[item.ID]; !ok {
			e.failItem(item.ID, errors.New("task did not report a terminal status"))
		}
	}
}

// processItem resolves the item's conflict policy against the destination,
// performs the copy, and records the resulting terminal item status. Any
// error from the store itself (not the copy) is logged rather than
// propagated, since one item's bookkeeping failure must not abort the
// whole batch.
func (e *Engine) processItem(ctx context.Context, job catalog.CloneJob, item catalog.CloneJobItem, source, dest Gateway) {
	log := logging.WithJob(job.ID)
	if err := e.Store.UpdateItemStatus(item.ID, catalog.ItemStatusActive, ""); err != nil {
		log.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item active")
		return
	}

	skip, err := e.shouldSkip(ctx, job, item, dest)
	if err != nil {
		e.failItem(item.ID, err)
		return
	}
	if skip {
		if err := e.Store.UpdateItemStatus(item.ID, catalog.ItemStatusSkipped, ""); err != nil {
			log.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item skipped")
		}
		return
	}

	if job.IsSameTarget {
		err = dest.CopyObject(ctx, job.SourceBucket, item.SourceKey, job.DestBucket, item.DestKey, item.Size)
	} else {
		err = e.stageThroughLocal(ctx, job, item, source, dest)
	}
	if err != nil {
		e.failItem(item.ID, err)
		return
	}

	if err := e.Store.UpdateItemStatus(item.ID, catalog.ItemStatusCompleted, ""); err != nil {
		log.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item completed")
	}
}

// stageThroughLocal performs a cross-target copy by downloading the
// source object to a randomly-named file under the engine's temp
// directory, then uploading from that file. The temp file is removed on
// every exit path, successful or not.
func (e *Engine) stageThroughLocal(ctx context.Context, job catalog.CloneJob, item catalog.CloneJobItem, source, dest Gateway) error {
	dir := e.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "mahzen-clone-"+ids.New())
	defer os.Remove(path)

	body, size, err := source.GetObjectStream(ctx, job.SourceBucket, item.SourceKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", item.SourceKey, err)
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("stage %s to disk: %w", item.SourceKey, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staged file: %w", err)
	}

	upload, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopen staged file: %w", err)
	}
	defer upload.Close()

	if err := dest.PutStream(ctx, job.DestBucket, item.DestKey, upload, size); err != nil {
		return fmt.Errorf("upload %s: %w", item.DestKey, err)
	}
	return nil
}

func (e *Engine) failItem(itemID string, err error) {
	if storeErr := e.Store.UpdateItemStatus(itemID, catalog.ItemStatusFailed, err.Error()); storeErr != nil {
		logging.Logger.Error().Err(storeErr).Str("item_id", itemID).Msg("failed to mark item failed")
	}
}

// shouldSkip resolves the job's conflict policy against whatever currently
// exists at the destination key. Only s3gateway.ErrNotFound means "the
// destination does not exist, proceed"; any other HeadObject error (access
// denied, throttling, a timeout) is a genuine failure and is propagated so
// the item is marked failed rather than silently copied or skipped. A
// policy string outside the known set behaves like overwrite.
func (e *Engine) shouldSkip(ctx context.Context, job catalog.CloneJob, item catalog.CloneJobItem, dest Gateway) (bool, error) {
	switch job.ConflictPolicy {
	case catalog.ConflictSkip:
		_, err := dest.HeadObject(ctx, job.DestBucket, item.DestKey)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, s3gateway.ErrNotFound) {
			return false, nil
		}
		return false, err
	case catalog.ConflictOverwriteIfNewer:
		existing, err := dest.HeadObject(ctx, job.DestBucket, item.DestKey)
		if err != nil {
			if errors.Is(err, s3gateway.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		// RFC3339 timestamps compare correctly as plain strings; no need
		// to parse either side into a time.Time first.
		return existing.LastModified >= item.SourceLastModified, nil
	default:
		return false, nil
	}
}
