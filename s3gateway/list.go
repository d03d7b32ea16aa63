package s3gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ListBuckets returns every bucket visible to the target's credentials,
// sorted case-insensitively by name.
func (g *Gateway) ListBuckets(ctx context.Context) ([]BucketSummary, error) {
	out, err := g.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	buckets := make([]BucketSummary, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := stringValue(b.Name)
		if name == "" {
			continue
		}
		summary := BucketSummary{Name: name}
		if b.CreationDate != nil {
			summary.CreatedAt = b.CreationDate.Unix()
		}
		buckets = append(buckets, summary)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return strings.ToLower(buckets[i].Name) < strings.ToLower(buckets[j].Name)
	})
	return buckets, nil
}

// List returns every direct child of prefix (folders from common prefixes,
// files from contents), walking every page, sorted folders-first then by
// case-insensitive name. Used where the caller wants the whole listing at
// once rather than paging it themselves.
func (g *Gateway) List(ctx context.Context, bucket, prefix string) ([]ObjectEntry, error) {
	var entries []ObjectEntry
	var token *string

	for {
		out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &prefix,
			Delimiter:         strPtr("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}

		entries = append(entries, commonPrefixEntries(out, prefix)...)
		entries = append(entries, contentEntries(out, prefix)...)

		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	sortFoldersFirst(entries)
	return entries, nil
}

// ListPage returns a single page of a delimited listing. Common prefixes
// (folders) are only emitted on the first page (an empty continuation
// token), since S3 repeats them on every page of the same listing.
func (g *Gateway) ListPage(ctx context.Context, bucket, prefix string, maxKeys int32, continuationToken string) (ObjectListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    &bucket,
		Prefix:    &prefix,
		Delimiter: strPtr("/"),
		MaxKeys:   &maxKeys,
	}
	if continuationToken != "" {
		input.ContinuationToken = &continuationToken
	}

	out, err := g.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ObjectListPage{}, fmt.Errorf("list objects page: %w", err)
	}

	var entries []ObjectEntry
	if continuationToken == "" {
		entries = append(entries, commonPrefixEntries(out, prefix)...)
	}
	entries = append(entries, contentEntries(out, prefix)...)
	sortFoldersFirst(entries)

	page := ObjectListPage{Entries: entries}
	page.IsTruncated = out.IsTruncated != nil && *out.IsTruncated
	if page.IsTruncated {
		page.NextContinuationToken = stringValue(out.NextContinuationToken)
	}
	return page, nil
}

// ListRecursivePage returns one page of a flat, prefix-scoped listing with
// no delimiter, skipping empty keys and folder-marker keys ending in "/" as
// the clone engine's enumeration phase requires: it copies real objects
// only, synthesizing nothing for prefixes along the way.
func (g *Gateway) ListRecursivePage(ctx context.Context, bucket, prefix, continuationToken string) (ObjectListPage, error) {
	input := &s3.ListObjectsV2Input{Bucket: &bucket, Prefix: &prefix}
	if continuationToken != "" {
		input.ContinuationToken = &continuationToken
	}

	out, err := g.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ObjectListPage{}, fmt.Errorf("list objects recursive page: %w", err)
	}

	entries := make([]ObjectEntry, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := stringValue(obj.Key)
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		name := key
		if idx := strings.LastIndex(key, "/"); idx >= 0 {
			name = key[idx+1:]
		}
		entries = append(entries, ObjectEntry{
			Key:          key,
			Name:         name,
			Size:         int64Value(obj.Size),
			LastModified: timeValue(obj.LastModified),
			ETag:         stringValue(obj.ETag),
			StorageClass: string(obj.StorageClass),
		})
	}

	page := ObjectListPage{Entries: entries}
	page.IsTruncated = out.IsTruncated != nil && *out.IsTruncated
	if page.IsTruncated {
		page.NextContinuationToken = stringValue(out.NextContinuationToken)
	}
	return page, nil
}

// ListRecursive returns every real object under prefix with no delimiter,
// so nested keys are flattened into one list instead of stopping at the
// next "/". Used for whole-prefix operations (bulk delete, folder
// download) that need the complete set rather than a resumable page.
func (g *Gateway) ListRecursive(ctx context.Context, bucket, prefix string) ([]ObjectEntry, error) {
	var entries []ObjectEntry
	var token *string

	for {
		out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list objects recursive: %w", err)
		}

		for _, obj := range out.Contents {
			key := stringValue(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			name := key
			if idx := strings.LastIndex(key, "/"); idx >= 0 {
				name = key[idx+1:]
			}
			entries = append(entries, ObjectEntry{
				Key:          key,
				Name:         name,
				Size:         int64Value(obj.Size),
				LastModified: timeValue(obj.LastModified),
				ETag:         stringValue(obj.ETag),
				StorageClass: string(obj.StorageClass),
			})
		}

		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return entries, nil
}

// Stats walks every page of an unfiltered listing to total a bucket's
// object count and byte size.
func (g *Gateway) Stats(ctx context.Context, bucket string) (BucketStats, error) {
	var stats BucketStats
	var token *string

	for {
		out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			ContinuationToken: token,
		})
		if err != nil {
			return BucketStats{}, fmt.Errorf("list objects for stats: %w", err)
		}

		for _, obj := range out.Contents {
			stats.ObjectCount++
			stats.TotalSize += int64Value(obj.Size)
		}

		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return stats, nil
}

func commonPrefixEntries(out *s3.ListObjectsV2Output, prefix string) []ObjectEntry {
	var entries []ObjectEntry
	for _, cp := range out.CommonPrefixes {
		p := stringValue(cp.Prefix)
		if p == "" || p == prefix {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, ObjectEntry{Key: p, Name: name, IsFolder: true})
	}
	return entries
}

func contentEntries(out *s3.ListObjectsV2Output, prefix string) []ObjectEntry {
	var entries []ObjectEntry
	for _, obj := range out.Contents {
		key := stringValue(obj.Key)
		if key == "" || key == prefix {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		entries = append(entries, ObjectEntry{
			Key:          key,
			Name:         name,
			Size:         int64Value(obj.Size),
			LastModified: timeValue(obj.LastModified),
			ETag:         stringValue(obj.ETag),
			StorageClass: string(obj.StorageClass),
		})
	}
	return entries
}

// ListFlatPage returns one page of an undelimited bucket-wide listing,
// including zero-byte keys ending in "/" (folder markers), which the
// indexing engine needs to register as explicit folder entries distinct
// from the virtual folders it synthesizes from ancestor prefixes.
func (g *Gateway) ListFlatPage(ctx context.Context, bucket, continuationToken string) (ObjectListPage, error) {
	input := &s3.ListObjectsV2Input{Bucket: &bucket}
	if continuationToken != "" {
		input.ContinuationToken = &continuationToken
	}

	out, err := g.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ObjectListPage{}, fmt.Errorf("list objects flat page: %w", err)
	}

	entries := make([]ObjectEntry, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := stringValue(obj.Key)
		if key == "" {
			continue
		}
		name := key
		if idx := strings.LastIndex(strings.TrimSuffix(key, "/"), "/"); idx >= 0 {
			name = key[idx+1:]
		}
		entries = append(entries, ObjectEntry{
			Key:          key,
			Name:         strings.TrimSuffix(name, "/"),
			Size:         int64Value(obj.Size),
			LastModified: timeValue(obj.LastModified),
			ETag:         stringValue(obj.ETag),
			StorageClass: string(obj.StorageClass),
			IsFolder:     strings.HasSuffix(key, "/"),
		})
	}

	page := ObjectListPage{Entries: entries}
	page.IsTruncated = out.IsTruncated != nil && *out.IsTruncated
	if page.IsTruncated {
		page.NextContinuationToken = stringValue(out.NextContinuationToken)
	}
	return page, nil
}

func sortFoldersFirst(entries []ObjectEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsFolder != entries[j].IsFolder {
			return entries[i].IsFolder
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
