package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Bucket index state status values, per the data model's closed
// {idle, indexing, error} enumeration. A successful run's terminal status
// is IndexStatusIdle, the same value a fresh, never-indexed bucket starts in.
const (
	IndexStatusIdle     = "idle"
	IndexStatusIndexing = "indexing"
	IndexStatusError    = "error"
)

// IndexState mirrors the bucket_index_state row for one (target, bucket)
// pair. There is at most one row per pair, per its composite primary key.
type IndexState struct {
	TargetID          string
	Bucket            string
	Status            string
	TotalObjects      int64
	IndexedObjects    int64
	TotalSize         int64
	ContinuationToken string
	LastIndexedAt     int64
	CreatedAt         int64
	UpdatedAt         int64
}

// IndexObject mirrors a bucket_index_objects row: either a real S3 object
// or a synthesized virtual folder marker (IsFolder true, Size 0).
type IndexObject struct {
	TargetID     string
	Bucket       string
	Key          string
	ParentPrefix string
	Name         string
	IsFolder     bool
	Size         int64
	LastModified string
	ETag         string
	StorageClass string
}

const indexStateColumns = `
	target_id, bucket, status, total_objects, indexed_objects, total_size,
	continuation_token, last_indexed_at, created_at, updated_at`

func scanIndexState(row interface {
	Scan(dest ...any) error
}) (IndexState, error) {
	var st IndexState
	var continuationToken sql.NullString
	var lastIndexedAt sql.NullInt64
	err := row.Scan(
		&st.TargetID, &st.Bucket, &st.Status, &st.TotalObjects, &st.IndexedObjects,
		&st.TotalSize, &continuationToken, &lastIndexedAt, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return IndexState{}, err
	}
	st.ContinuationToken = continuationToken.String
	st.LastIndexedAt = lastIndexedAt.Int64
	return st, nil
}

// GetIndexState returns the index state for a (target, bucket) pair, or
// ErrNotFound if that bucket has never been indexed.
func (s *Store) GetIndexState(targetID, bucket string) (IndexState, error) {
	row := s.db.QueryRow(`
		SELECT `+indexStateColumns+` FROM bucket_index_state WHERE target_id = ? AND bucket = ?
	`, targetID, bucket)
	st, err := scanIndexState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexState{}, ErrNotFound
	}
	if err != nil {
		return IndexState{}, fmt.Errorf("get index state: %w", err)
	}
	return st, nil
}

// ListIndexStates returns every indexed or in-progress (target, bucket) pair.
func (s *Store) ListIndexStates() ([]IndexState, error) {
	rows, err := s.db.Query(`SELECT ` + indexStateColumns + ` FROM bucket_index_state ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list index states: %w", err)
	}
	defer rows.Close()

	var states []IndexState
	for rows.Next() {
		st, err := scanIndexState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// UpsertIndexState creates the (target, bucket) row on first index_start,
// or updates its mutable fields on a subsequent run.
func (s *Store) UpsertIndexState(st IndexState) error {
	now := nowEpoch()
	_, err := s.db.Exec(`
		INSERT INTO bucket_index_state (`+indexStateColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(target_id, bucket) DO UPDATE SET
			status = excluded.status,
			total_objects = excluded.total_objects,
			indexed_objects = excluded.indexed_objects,
			total_size = excluded.total_size,
			continuation_token = excluded.continuation_token,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
	`, st.TargetID, st.Bucket, st.Status, st.TotalObjects, st.IndexedObjects, st.TotalSize,
		nullable(st.ContinuationToken), nullInt(st.LastIndexedAt), now, now)
	if err != nil {
		return fmt.Errorf("upsert index state: %w", err)
	}
	return nil
}

// UpdateIndexProgress advances the running counters and checkpoint token
// for an in-progress index run.
func (s *Store) UpdateIndexProgress(targetID, bucket string, indexedObjects, totalSize int64, continuationToken string) error {
	_, err := s.db.Exec(`
		UPDATE bucket_index_state SET
			indexed_objects = ?, total_size = ?, continuation_token = ?, updated_at = ?
		WHERE target_id = ? AND bucket = ?
	`, indexedObjects, totalSize, nullable(continuationToken), nowEpoch(), targetID, bucket)
	if err != nil {
		return fmt.Errorf("update index progress: %w", err)
	}
	return nil
}

// SetIndexStatus transitions only the status column, leaving the
// continuation token and counters untouched; the cancel and error paths
// depend on the checkpoint surviving so a later run can resume from it.
func (s *Store) SetIndexStatus(targetID, bucket, status string) error {
	_, err := s.db.Exec(`
		UPDATE bucket_index_state SET status = ?, updated_at = ? WHERE target_id = ? AND bucket = ?
	`, status, nowEpoch(), targetID, bucket)
	if err != nil {
		return fmt.Errorf("set index status: %w", err)
	}
	return nil
}

// CompleteIndex records a finished index run: it sets status (the index
// engine passes idle), records total_objects, clears the continuation
// token, and stamps last_indexed_at. The cancel and error exits use
// SetIndexStatus instead, which keeps the token.
func (s *Store) CompleteIndex(targetID, bucket, status string, totalObjects int64) error {
	now := nowEpoch()
	_, err := s.db.Exec(`
		UPDATE bucket_index_state SET
			status = ?, total_objects = ?, continuation_token = NULL,
			last_indexed_at = ?, updated_at = ?
		WHERE target_id = ? AND bucket = ?
	`, status, totalObjects, now, now, targetID, bucket)
	if err != nil {
		return fmt.Errorf("complete index: %w", err)
	}
	return nil
}

// DeleteIndex removes the state row and every object row for the pair.
func (s *Store) DeleteIndex(targetID, bucket string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete index: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM bucket_index_objects WHERE target_id = ? AND bucket = ?`, targetID, bucket); err != nil {
		return fmt.Errorf("delete index objects: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM bucket_index_state WHERE target_id = ? AND bucket = ?`, targetID, bucket); err != nil {
		return fmt.Errorf("delete index state: %w", err)
	}
	return tx.Commit()
}

// ClearObjects deletes every object row for a pair without touching its
// state row, used by index_start with fresh=true before reindexing.
func (s *Store) ClearObjects(targetID, bucket string) error {
	if _, err := s.db.Exec(`DELETE FROM bucket_index_objects WHERE target_id = ? AND bucket = ?`, targetID, bucket); err != nil {
		return fmt.Errorf("clear index objects: %w", err)
	}
	return nil
}

// InsertObjectsBatch atomically upserts a page of index rows. Inserting
// the same key twice (a folder marker synthesized before its first member
// object, or a resumed page overlap) replaces the earlier row.
func (s *Store) InsertObjectsBatch(objects []IndexObject) error {
	if len(objects) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin objects batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bucket_index_objects
			(target_id, bucket, key, parent_prefix, name, is_folder, size, last_modified, etag, storage_class)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		return fmt.Errorf("prepare objects batch insert: %w", err)
	}
	defer stmt.Close()

	for _, obj := range objects {
		_, err := stmt.Exec(
			obj.TargetID, obj.Bucket, obj.Key, obj.ParentPrefix, obj.Name, boolToInt(obj.IsFolder),
			obj.Size, nullable(obj.LastModified), nullable(obj.ETag), nullable(obj.StorageClass),
		)
		if err != nil {
			return fmt.Errorf("insert object %s: %w", obj.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit objects batch: %w", err)
	}
	return nil
}

// UpsertObject inserts or replaces a single index row, used by the clone
// engine to keep the destination bucket's index current after a copy.
func (s *Store) UpsertObject(obj IndexObject) error {
	return s.InsertObjectsBatch([]IndexObject{obj})
}

// RemoveObjects deletes a set of keys from one bucket's index.
func (s *Store) RemoveObjects(targetID, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove objects: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM bucket_index_objects WHERE target_id = ? AND bucket = ? AND key = ?`)
	if err != nil {
		return fmt.Errorf("prepare remove objects: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.Exec(targetID, bucket, key); err != nil {
			return fmt.Errorf("remove object %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// BrowsePage is the result of Browse: one page of direct children of a
// parent prefix, folders-first, plus pagination metadata.
type BrowsePage struct {
	Objects               []IndexObject
	Total                 int64
	IsTruncated           bool
	NextContinuationToken string
}

// browseSortColumns is the closed set of columns Browse accepts for
// sort_field. Any value not in this set falls back to "name", preventing
// the caller-supplied sort field from being concatenated into SQL.
var browseSortColumns = map[string]string{
	"name":          "name",
	"size":          "size",
	"last_modified": "last_modified",
	"storage_class": "storage_class",
}

// Browse lists the direct children of parentPrefix within one bucket's
// index, sorted with folders always first. sortField and sortDir are
// validated against closed sets rather than interpolated directly, since
// both arrive as free-form strings from the caller.
func (s *Store) Browse(targetID, bucket, parentPrefix, sortField, sortDir string, limit, offset int64) (BrowsePage, error) {
	column, ok := browseSortColumns[sortField]
	if !ok {
		column = "name"
	}
	direction := "ASC"
	if sortDir == "DESC" {
		direction = "DESC"
	}

	var total int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM bucket_index_objects WHERE target_id = ? AND bucket = ? AND parent_prefix = ?
	`, targetID, bucket, parentPrefix).Scan(&total)
	if err != nil {
		return BrowsePage{}, fmt.Errorf("count browse page: %w", err)
	}

	query := `
		SELECT target_id, bucket, key, parent_prefix, name, is_folder, size, last_modified, etag, storage_class
		FROM bucket_index_objects
		WHERE target_id = ? AND bucket = ? AND parent_prefix = ?
		ORDER BY is_folder DESC, ` + column + ` ` + direction + `, name ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.Query(query, targetID, bucket, parentPrefix, limit, offset)
	if err != nil {
		return BrowsePage{}, fmt.Errorf("browse: %w", err)
	}
	defer rows.Close()

	objects, err := scanIndexObjects(rows)
	if err != nil {
		return BrowsePage{}, err
	}

	page := BrowsePage{Objects: objects, Total: total}
	page.IsTruncated = offset+limit < total
	if page.IsTruncated {
		page.NextContinuationToken = strconv.FormatInt(offset+limit, 10)
	}
	return page, nil
}

// Search finds real objects (never folder markers) anywhere in a bucket's
// index whose key or name contains q, ordered by name.
func (s *Store) Search(targetID, bucket, q string, limit int64) ([]IndexObject, error) {
	like := "%" + q + "%"
	rows, err := s.db.Query(`
		SELECT target_id, bucket, key, parent_prefix, name, is_folder, size, last_modified, etag, storage_class
		FROM bucket_index_objects
		WHERE target_id = ? AND bucket = ? AND is_folder = 0 AND (name LIKE ? OR key LIKE ?)
		ORDER BY name ASC
		LIMIT ?
	`, targetID, bucket, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search index objects: %w", err)
	}
	defer rows.Close()
	return scanIndexObjects(rows)
}

func scanIndexObjects(rows *sql.Rows) ([]IndexObject, error) {
	var objects []IndexObject
	for rows.Next() {
		var obj IndexObject
		var isFolder int
		var lastModified, etag, storageClass sql.NullString
		err := rows.Scan(
			&obj.TargetID, &obj.Bucket, &obj.Key, &obj.ParentPrefix, &obj.Name, &isFolder,
			&obj.Size, &lastModified, &etag, &storageClass,
		)
		if err != nil {
			return nil, fmt.Errorf("scan index object: %w", err)
		}
		obj.IsFolder = isFolder != 0
		obj.LastModified = lastModified.String
		obj.ETag = etag.String
		obj.StorageClass = storageClass.String
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}
