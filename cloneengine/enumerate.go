package cloneengine

import (
	"context"
	"strings"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/ids"
	"github.com/mahzen/engine/logging"
	"github.com/mahzen/engine/signalbus"
)

// enumerate walks the job's source prefix one ListObjectsV2 page at a
// time, persisting each page's objects as pending clone_job_items rows
// and checkpointing the real continuation token before fetching the next
// page. A crash between pages resumes from the last checkpointed token
// instead of re-listing from the start, per the enumeration resumption
// contract. It checks for a pause/cancel signal between pages so a large
// listing can still be paused before the first copy ever starts.
func (e *Engine) enumerate(ctx context.Context, job catalog.CloneJob, w *signalbus.Watch[signalbus.CloneSignal]) error {
	source, err := e.Gateways(job.SourceTargetID)
	if err != nil {
		return err
	}

	log := logging.WithJob(job.ID)
	token := job.EnumerationToken
	totalItems, totalBytes := job.TotalItems, job.TotalBytes

	for {
		if err := e.checkSignal(ctx, job.ID, w, catalog.CloneStatusEnumerating); err != nil {
			return err
		}

		page, err := source.ListRecursivePage(ctx, job.SourceBucket, job.SourcePrefix, token)
		if err != nil {
			return err
		}

		items := make([]catalog.CloneJobItem, 0, len(page.Entries))
		now := time.Now().Unix()
		for _, entry := range page.Entries {
			items = append(items, catalog.CloneJobItem{
				ID:                 ids.New(),
				JobID:              job.ID,
				SourceKey:          entry.Key,
				DestKey:            computeDestKey(job, entry.Key),
				Size:               entry.Size,
				SourceETag:         entry.ETag,
				SourceLastModified: entry.LastModified,
				Status:             catalog.ItemStatusPending,
				CreatedAt:          now,
				UpdatedAt:          now,
			})
			totalBytes += entry.Size
		}
		totalItems += int64(len(items))

		if err := e.Store.InsertItemsBatch(items); err != nil {
			return err
		}

		token = page.NextContinuationToken
		complete := !page.IsTruncated
		if err := e.Store.SaveEnumerationState(job.ID, token, totalItems, totalBytes, complete); err != nil {
			return err
		}
		log.Info().Int64("total_items", totalItems).Int64("total_bytes", totalBytes).Msg("enumeration progress")

		if complete {
			return nil
		}
	}
}

// computeDestKey rewrites a source key rooted at job.SourcePrefix into an
// equivalent key rooted at job.DestPrefix.
func computeDestKey(job catalog.CloneJob, sourceKey string) string {
	rel := strings.TrimPrefix(sourceKey, job.SourcePrefix)
	return job.DestPrefix + rel
}
