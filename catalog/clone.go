package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Clone job / item status values, per the data model's closed enumerations.
const (
	CloneStatusPending     = "pending"
	CloneStatusEnumerating = "enumerating"
	CloneStatusRunning     = "running"
	CloneStatusPaused      = "paused"
	CloneStatusCancelled   = "cancelled"
	CloneStatusCompleted   = "completed"
	CloneStatusFailed      = "failed"

	ItemStatusPending   = "pending"
	ItemStatusActive    = "active"
	ItemStatusCompleted = "completed"
	ItemStatusSkipped   = "skipped"
	ItemStatusFailed    = "failed"

	ConflictOverwrite        = "overwrite"
	ConflictSkip             = "skip"
	ConflictOverwriteIfNewer = "overwriteIfNewer"
)

// CloneJob mirrors the clone_jobs row defined in the data model.
type CloneJob struct {
	ID                  string
	Status              string
	SourceTargetID      string
	SourceBucket        string
	SourcePrefix        string
	DestTargetID        string
	DestBucket          string
	DestPrefix          string
	ConflictPolicy      string
	IsSameTarget        bool
	EnumerationToken    string
	EnumerationComplete bool
	TotalItems          int64
	CompletedItems      int64
	FailedItems         int64
	SkippedItems        int64
	TotalBytes          int64
	TransferredBytes    int64
	CreatedAt           int64
	UpdatedAt           int64
	CompletedAt         int64 // 0 means unset
}

// CloneJobItem mirrors the clone_job_items row defined in the data model.
type CloneJobItem struct {
	ID                 string
	JobID              string
	SourceKey          string
	DestKey            string
	Size               int64
	SourceETag         string
	SourceLastModified string
	Status             string
	ErrorMessage       string
	RetryCount         int64
	CreatedAt          int64
	UpdatedAt          int64
}

// ItemStatusCounts is the aggregate computed in a single query by
// CountItemsByStatus, as required by the invariant that completed+failed+
// skipped+pending+active always equals total_items.
type ItemStatusCounts struct {
	Completed             int64
	Failed                int64
	Skipped               int64
	Pending               int64
	Active                int64
	TotalTransferredBytes int64
}

const cloneJobColumns = `
	id, status, source_target_id, source_bucket, source_prefix,
	dest_target_id, dest_bucket, dest_prefix, conflict_policy,
	is_same_target, enumeration_token, enumeration_complete,
	total_items, completed_items, failed_items, skipped_items,
	total_bytes, transferred_bytes, created_at, updated_at, completed_at`

func scanCloneJob(row interface {
	Scan(dest ...any) error
}) (CloneJob, error) {
	var j CloneJob
	var enumerationToken sql.NullString
	var isSameTarget, enumerationComplete int
	var completedAt sql.NullInt64
	err := row.Scan(
		&j.ID, &j.Status, &j.SourceTargetID, &j.SourceBucket, &j.SourcePrefix,
		&j.DestTargetID, &j.DestBucket, &j.DestPrefix, &j.ConflictPolicy,
		&isSameTarget, &enumerationToken, &enumerationComplete,
		&j.TotalItems, &j.CompletedItems, &j.FailedItems, &j.SkippedItems,
		&j.TotalBytes, &j.TransferredBytes, &j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		return CloneJob{}, err
	}
	j.IsSameTarget = isSameTarget != 0
	j.EnumerationToken = enumerationToken.String
	j.EnumerationComplete = enumerationComplete != 0
	j.CompletedAt = completedAt.Int64
	return j, nil
}

// InsertCloneJob creates a new clone job row with the fields of j as given,
// including its status (the clone engine's Start sets it to "pending").
func (s *Store) InsertCloneJob(j CloneJob) error {
	_, err := s.db.Exec(`
		INSERT INTO clone_jobs (`+cloneJobColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		j.ID, j.Status, j.SourceTargetID, j.SourceBucket, j.SourcePrefix,
		j.DestTargetID, j.DestBucket, j.DestPrefix, j.ConflictPolicy,
		boolToInt(j.IsSameTarget), nullable(j.EnumerationToken), boolToInt(j.EnumerationComplete),
		j.TotalItems, j.CompletedItems, j.FailedItems, j.SkippedItems,
		j.TotalBytes, j.TransferredBytes, j.CreatedAt, j.UpdatedAt, nullInt(j.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert clone job: %w", err)
	}
	return nil
}

// GetCloneJob returns a single clone job, or ErrNotFound.
func (s *Store) GetCloneJob(id string) (CloneJob, error) {
	row := s.db.QueryRow(`SELECT `+cloneJobColumns+` FROM clone_jobs WHERE id = ?`, id)
	j, err := scanCloneJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CloneJob{}, ErrNotFound
	}
	if err != nil {
		return CloneJob{}, fmt.Errorf("get clone job: %w", err)
	}
	return j, nil
}

// ListCloneJobs returns all clone jobs, most recently created first.
func (s *Store) ListCloneJobs() ([]CloneJob, error) {
	rows, err := s.db.Query(`SELECT ` + cloneJobColumns + ` FROM clone_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list clone jobs: %w", err)
	}
	defer rows.Close()

	var jobs []CloneJob
	for rows.Next() {
		j, err := scanCloneJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clone job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FindCloneJobsByStatus returns every job whose status is in statuses, used
// by the crash-recovery supervisor to find running/enumerating jobs.
func (s *Store) FindCloneJobsByStatus(statuses ...string) ([]CloneJob, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = status
	}
	query := `SELECT ` + cloneJobColumns + ` FROM clone_jobs WHERE status IN (` +
		strings.Join(placeholders, ", ") + `)`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find clone jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []CloneJob
	for rows.Next() {
		j, err := scanCloneJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clone job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateCloneJobStatus transitions a job's status and stamps updated_at.
func (s *Store) UpdateCloneJobStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE clone_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, nowEpoch(), id)
	if err != nil {
		return fmt.Errorf("update clone job status: %w", err)
	}
	return nil
}

// UpdateCloneJobProgress recomputes the job's aggregate counters, typically
// from CountItemsByStatus after a batch completes.
func (s *Store) UpdateCloneJobProgress(id string, completed, failed, skipped, transferredBytes int64) error {
	_, err := s.db.Exec(`
		UPDATE clone_jobs SET
			completed_items = ?, failed_items = ?, skipped_items = ?,
			transferred_bytes = ?, updated_at = ?
		WHERE id = ?
	`, completed, failed, skipped, transferredBytes, nowEpoch(), id)
	if err != nil {
		return fmt.Errorf("update clone job progress: %w", err)
	}
	return nil
}

// CompleteCloneJob stamps completed_at == updated_at == now and sets the
// terminal status (completed, failed, or cancelled).
func (s *Store) CompleteCloneJob(id, status string) error {
	now := nowEpoch()
	_, err := s.db.Exec(`UPDATE clone_jobs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		status, now, now, id)
	if err != nil {
		return fmt.Errorf("complete clone job: %w", err)
	}
	return nil
}

// SaveEnumerationState advances the resumable listing checkpoint. It is
// called only after the items produced from the previous page are durably
// persisted, per the checkpoint-overwrite invariant.
func (s *Store) SaveEnumerationState(id string, token string, totalItems, totalBytes int64, complete bool) error {
	_, err := s.db.Exec(`
		UPDATE clone_jobs SET
			enumeration_token = ?, total_items = ?, total_bytes = ?,
			enumeration_complete = ?, updated_at = ?
		WHERE id = ?
	`, nullable(token), totalItems, totalBytes, boolToInt(complete), nowEpoch(), id)
	if err != nil {
		return fmt.Errorf("save enumeration state: %w", err)
	}
	return nil
}

// DeleteCloneJob removes a job and (via cascade) its items.
func (s *Store) DeleteCloneJob(id string) error {
	if _, err := s.db.Exec(`DELETE FROM clone_jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete clone job: %w", err)
	}
	return nil
}

// --- Clone Job Items ---

// InsertItemsBatch atomically inserts a page of clone items, ignoring rows
// whose id already exists; the resumption contract depends on this being
// idempotent across enumeration restarts.
func (s *Store) InsertItemsBatch(items []CloneJobItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin items batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO clone_job_items
			(id, job_id, source_key, dest_key, size, source_etag,
			 source_last_modified, status, retry_count, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		return fmt.Errorf("prepare items batch insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.Exec(
			item.ID, item.JobID, item.SourceKey, item.DestKey, item.Size,
			nullable(item.SourceETag), nullable(item.SourceLastModified),
			item.Status, item.RetryCount, item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items batch: %w", err)
	}
	return nil
}

const cloneItemColumns = `
	id, job_id, source_key, dest_key, size, source_etag,
	source_last_modified, status, error_message, retry_count,
	created_at, updated_at`

func scanCloneItem(row interface {
	Scan(dest ...any) error
}) (CloneJobItem, error) {
	var it CloneJobItem
	var sourceETag, sourceLastModified, errorMessage sql.NullString
	err := row.Scan(
		&it.ID, &it.JobID, &it.SourceKey, &it.DestKey, &it.Size, &sourceETag,
		&sourceLastModified, &it.Status, &errorMessage, &it.RetryCount,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return CloneJobItem{}, err
	}
	it.SourceETag = sourceETag.String
	it.SourceLastModified = sourceLastModified.String
	it.ErrorMessage = errorMessage.String
	return it, nil
}

// ListPendingItems returns the next oldest-first batch of pending items,
// bounded to limit rows, the unit of work for one execution-phase batch.
func (s *Store) ListPendingItems(jobID string, limit int64) ([]CloneJobItem, error) {
	rows, err := s.db.Query(`
		SELECT `+cloneItemColumns+`
		FROM clone_job_items
		WHERE job_id = ? AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	defer rows.Close()

	var items []CloneJobItem
	for rows.Next() {
		it, err := scanCloneItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListItems returns a page of a job's items, optionally filtered by status.
func (s *Store) ListItems(jobID string, statusFilter string, limit, offset int64) ([]CloneJobItem, error) {
	var rows *sql.Rows
	var err error
	if statusFilter != "" {
		rows, err = s.db.Query(`
			SELECT `+cloneItemColumns+`
			FROM clone_job_items WHERE job_id = ? AND status = ?
			ORDER BY created_at ASC LIMIT ? OFFSET ?
		`, jobID, statusFilter, limit, offset)
	} else {
		rows, err = s.db.Query(`
			SELECT `+cloneItemColumns+`
			FROM clone_job_items WHERE job_id = ?
			ORDER BY created_at ASC LIMIT ? OFFSET ?
		`, jobID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []CloneJobItem
	for rows.Next() {
		it, err := scanCloneItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateItemStatus transitions a single item's status and stamps updated_at.
// An empty errorMessage clears any previously recorded error.
func (s *Store) UpdateItemStatus(id, status, errorMessage string) error {
	_, err := s.db.Exec(`
		UPDATE clone_job_items SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, status, nullable(errorMessage), nowEpoch(), id)
	if err != nil {
		return fmt.Errorf("update item status: %w", err)
	}
	return nil
}

// ResetActiveItems transitions any "active" rows for a job back to
// "pending", used on resume and on supervisor-driven crash recovery.
func (s *Store) ResetActiveItems(jobID string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE clone_job_items SET status = 'pending', updated_at = ? WHERE job_id = ? AND status = 'active'
	`, nowEpoch(), jobID)
	if err != nil {
		return 0, fmt.Errorf("reset active items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetFailedItems transitions "failed" rows back to "pending" and clears
// their error_message, used by clone_retry_failed.
func (s *Store) ResetFailedItems(jobID string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE clone_job_items SET status = 'pending', error_message = NULL, updated_at = ?
		WHERE job_id = ? AND status = 'failed'
	`, nowEpoch(), jobID)
	if err != nil {
		return 0, fmt.Errorf("reset failed items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountItemsByStatus computes the per-status aggregate in one query.
func (s *Store) CountItemsByStatus(jobID string) (ItemStatusCounts, error) {
	var c ItemStatusCounts
	err := s.db.QueryRow(`
		SELECT
		  COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN status = 'completed' THEN size ELSE 0 END), 0)
		FROM clone_job_items WHERE job_id = ?
	`, jobID).Scan(&c.Completed, &c.Failed, &c.Skipped, &c.Pending, &c.Active, &c.TotalTransferredBytes)
	if err != nil {
		return ItemStatusCounts{}, fmt.Errorf("count items by status: %w", err)
	}
	return c, nil
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
