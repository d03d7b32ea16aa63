// Package indexengine drives a single bucket's recursive listing into the
// catalog's queryable object index: one goroutine per (target, bucket)
// pair, paging ListObjectsV2 with no prefix and no delimiter, synthesizing
// virtual folder rows for every ancestor prefix it encounters, and
// checkpointing its continuation token after every page so a crash or
// cancel resumes from the last persisted page instead of restarting.
package indexengine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/logging"
	"github.com/mahzen/engine/s3gateway"
	"github.com/mahzen/engine/signalbus"
)

// progressThrottle bounds how often Run emits an index-progress update
// while a listing is in flight.
const progressThrottle = 300 * time.Millisecond

// Store is the subset of catalog.Store the engine needs. catalog.Store
// satisfies this interface; tests substitute a hand-rolled fake.
type Store interface {
	GetIndexState(targetID, bucket string) (catalog.IndexState, error)
	UpsertIndexState(st catalog.IndexState) error
	SetIndexStatus(targetID, bucket, status string) error
	UpdateIndexProgress(targetID, bucket string, indexedObjects, totalSize int64, continuationToken string) error
	CompleteIndex(targetID, bucket, status string, totalObjects int64) error
	ClearObjects(targetID, bucket string) error
	InsertObjectsBatch(objects []catalog.IndexObject) error
	DeleteIndex(targetID, bucket string) error
}

// Gateway is the subset of s3gateway.Gateway the engine needs.
// *s3gateway.Gateway satisfies this interface.
type Gateway interface {
	ListFlatPage(ctx context.Context, bucket, continuationToken string) (s3gateway.ObjectListPage, error)
}

// GatewayResolver returns the Gateway bound to a target id.
type GatewayResolver func(targetID string) (Gateway, error)

// Engine runs index jobs against a Store, resolving the bucket's gateway
// through Gateways, and listening for control signals on Signals.
type Engine struct {
	Store    Store
	Gateways GatewayResolver
	Signals  *signalbus.IndexBus
}

// Run drives one index of (targetID, bucket) to completion or cancellation.
// fresh, when true, purges any existing rows for the pair before the first
// page is fetched and forces a full scan even if a continuation token was
// left over from a prior run. It registers a fresh signal with the
// engine's IndexBus, keyed by signalbus.IndexKey(targetID, bucket), and
// removes it when the run stops for any reason.
func (e *Engine) Run(ctx context.Context, targetID, bucket string, fresh bool) error {
	key := signalbus.IndexKey(targetID, bucket)
	w := e.Signals.Start(key)
	defer e.Signals.Remove(key)

	log := logging.WithIndex(targetID, bucket)

	gw, err := e.Gateways(targetID)
	if err != nil {
		return e.fail(targetID, bucket, err)
	}

	token := ""
	var indexedObjects, totalSize int64
	if fresh {
		if err := e.Store.ClearObjects(targetID, bucket); err != nil {
			return e.fail(targetID, bucket, err)
		}
	} else {
		st, err := e.Store.GetIndexState(targetID, bucket)
		if err == nil {
			token = st.ContinuationToken
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return e.fail(targetID, bucket, err)
		}
		if token == "" {
			if err := e.Store.ClearObjects(targetID, bucket); err != nil {
				return e.fail(targetID, bucket, err)
			}
		} else {
			// Resuming mid-listing: the pages before the token are already
			// in the catalog, so the counters continue from where they left
			// off rather than restarting at zero.
			indexedObjects, totalSize = st.IndexedObjects, st.TotalSize
		}
	}

	now := time.Now().Unix()
	if err := e.Store.UpsertIndexState(catalog.IndexState{
		TargetID: targetID, Bucket: bucket, Status: catalog.IndexStatusIndexing,
		IndexedObjects: indexedObjects, TotalSize: totalSize,
		ContinuationToken: token, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return e.fail(targetID, bucket, err)
	}

	known := make(map[string]struct{})
	lastEmit := time.Now().Add(-progressThrottle)

	for {
		if w.Value() == signalbus.IndexCancel {
			// The token stays persisted so the next index_start resumes
			// from this page instead of rescanning the whole bucket.
			if err := e.Store.UpdateIndexProgress(targetID, bucket, indexedObjects, totalSize, token); err != nil {
				log.Error().Err(err).Msg("failed to persist progress before cancel")
			}
			if err := e.Store.SetIndexStatus(targetID, bucket, catalog.IndexStatusIdle); err != nil {
				log.Error().Err(err).Msg("failed to persist idle status after cancel")
				return err
			}
			return nil
		}

		page, err := gw.ListFlatPage(ctx, bucket, token)
		if err != nil {
			return e.fail(targetID, bucket, err)
		}

		rows := make([]catalog.IndexObject, 0, len(page.Entries)*2)
		for _, entry := range page.Entries {
			rows = append(rows, synthesizeAncestors(targetID, bucket, entry.Key, known)...)

			if entry.IsFolder {
				rows = append(rows, folderRow(targetID, bucket, entry.Key))
				continue
			}
			rows = append(rows, catalog.IndexObject{
				TargetID: targetID, Bucket: bucket, Key: entry.Key,
				ParentPrefix: parentPrefix(entry.Key), Name: entry.Name,
				IsFolder: false, Size: entry.Size, LastModified: entry.LastModified,
				ETag: entry.ETag, StorageClass: entry.StorageClass,
			})
			indexedObjects++
			totalSize += entry.Size
		}

		if err := e.Store.InsertObjectsBatch(rows); err != nil {
			return e.fail(targetID, bucket, err)
		}

		token = page.NextContinuationToken
		if err := e.Store.UpdateIndexProgress(targetID, bucket, indexedObjects, totalSize, token); err != nil {
			return e.fail(targetID, bucket, err)
		}

		if time.Since(lastEmit) >= progressThrottle {
			log.Info().Int64("indexed_objects", indexedObjects).Int64("total_size", totalSize).Msg("index progress")
			lastEmit = time.Now()
		}

		if !page.IsTruncated {
			break
		}
	}

	return e.Store.CompleteIndex(targetID, bucket, catalog.IndexStatusIdle, indexedObjects)
}

// fail transitions the index state to "error" and reports the original
// error, leaving the partially-populated catalog and the last-persisted
// continuation token intact for a later resume.
func (e *Engine) fail(targetID, bucket string, cause error) error {
	log := logging.WithIndex(targetID, bucket)
	log.Error().Err(cause).Msg("index run failed")
	if err := e.Store.SetIndexStatus(targetID, bucket, catalog.IndexStatusError); err != nil {
		return err
	}
	return cause
}

// parentPrefix derives the parent_prefix for a key per the data model's
// derivation rule: "a/b/c.txt" -> "a/b/"; "a/b/" -> "a/"; "file.txt" -> "".
func parentPrefix(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// lastSegment returns the final path component of key, handling both
// "a/b/c.txt" (-> "c.txt") and a folder key "a/b/" (-> "b").
func lastSegment(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

func folderRow(targetID, bucket, key string) catalog.IndexObject {
	folderKey := key
	if !strings.HasSuffix(folderKey, "/") {
		folderKey += "/"
	}
	return catalog.IndexObject{
		TargetID: targetID, Bucket: bucket, Key: folderKey,
		ParentPrefix: parentPrefix(folderKey), Name: lastSegment(folderKey), IsFolder: true,
	}
}

// synthesizeAncestors returns a virtual folder row for every ancestor
// prefix of key not already present in known, registering each one it
// creates so later keys under the same prefix skip it.
func synthesizeAncestors(targetID, bucket, key string, known map[string]struct{}) []catalog.IndexObject {
	trimmed := strings.TrimSuffix(key, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) <= 1 {
		return nil
	}

	var rows []catalog.IndexObject
	var prefix strings.Builder
	for _, part := range parts[:len(parts)-1] {
		prefix.WriteString(part)
		prefix.WriteString("/")
		p := prefix.String()
		if _, ok := known[p]; ok {
			continue
		}
		known[p] = struct{}{}
		rows = append(rows, catalog.IndexObject{
			TargetID: targetID, Bucket: bucket, Key: p,
			ParentPrefix: parentPrefix(p), Name: lastSegment(p), IsFolder: true,
		})
	}
	return rows
}
