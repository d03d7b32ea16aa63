package s3gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// multipartThreshold is the largest object size CopyObject will move with a
// single server-side CopyObject call. Anything larger is copied in parts.
const multipartThreshold = 5 * 1024 * 1024 * 1024 // 5 GiB

// copyPartSize is the byte range requested per UploadPartCopy call once an
// object crosses multipartThreshold.
const copyPartSize = 100 * 1024 * 1024 // 100 MiB

// CopyObject copies one object to a new key, within or across buckets
// reachable by the same client (same credentials, same or federated
// endpoint), the server-side path used for same-target clone jobs.
// Objects at or under multipartThreshold use a single CopyObject call;
// larger objects are copied in copyPartSize ranges via a multipart upload.
func (g *Gateway) CopyObject(ctx context.Context, srcBucket, srcKey, destBucket, destKey string, size int64) error {
	if size <= multipartThreshold {
		return g.copySingle(ctx, srcBucket, srcKey, destBucket, destKey)
	}
	return g.copyMultipart(ctx, srcBucket, srcKey, destBucket, destKey, size)
}

func (g *Gateway) copySingle(ctx context.Context, srcBucket, srcKey, destBucket, destKey string) error {
	copySource := buildCopySource(srcBucket, srcKey)
	_, err := g.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &destBucket,
		Key:        &destKey,
		CopySource: &copySource,
	})
	if err != nil {
		return fmt.Errorf("copy object %s to %s: %w", srcKey, destKey, err)
	}
	return nil
}

func (g *Gateway) copyMultipart(ctx context.Context, srcBucket, srcKey, destBucket, destKey string, size int64) error {
	created, err := g.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &destBucket,
		Key:    &destKey,
	})
	if err != nil {
		return fmt.Errorf("create multipart upload for %s: %w", destKey, err)
	}
	uploadID := created.UploadId

	completedParts, err := g.copyParts(ctx, srcBucket, srcKey, destBucket, destKey, *uploadID, size)
	if err != nil {
		return fmt.Errorf("copy parts for %s: %w%s", destKey, err, g.abortMultipartSuffix(ctx, destBucket, destKey, *uploadID))
	}

	_, err = g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &destBucket,
		Key:      &destKey,
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload for %s: %w%s", destKey, err, g.abortMultipartSuffix(ctx, destBucket, destKey, *uploadID))
	}
	return nil
}

func (g *Gateway) copyParts(ctx context.Context, srcBucket, srcKey, destBucket, destKey, uploadID string, size int64) ([]types.CompletedPart, error) {
	copySource := buildCopySource(srcBucket, srcKey)

	var parts []types.CompletedPart
	var partNumber int32 = 1
	for offset := int64(0); offset < size; offset += copyPartSize {
		end := offset + copyPartSize - 1
		if end >= size {
			end = size - 1
		}
		byteRange := fmt.Sprintf("bytes=%d-%d", offset, end)

		thisPart := partNumber
		out, err := g.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          &destBucket,
			Key:             &destKey,
			UploadId:        &uploadID,
			PartNumber:      &thisPart,
			CopySource:      &copySource,
			CopySourceRange: &byteRange,
		})
		if err != nil {
			return nil, fmt.Errorf("upload part copy %d (%s): %w", thisPart, byteRange, err)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       out.CopyPartResult.ETag,
			PartNumber: &thisPart,
		})
		partNumber++
	}
	return parts, nil
}

// abortMultipartSuffix aborts the upload and, if the abort call itself
// fails, returns a suffix describing that failure so the caller's wrapped
// error surfaces it instead of leaving an orphaned upload unreported.
func (g *Gateway) abortMultipartSuffix(ctx context.Context, bucket, key, uploadID string) string {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &bucket,
		Key:      &key,
		UploadId: &uploadID,
	})
	if err != nil {
		return fmt.Sprintf(" (also failed to abort multipart upload %s: %v)", uploadID, err)
	}
	return ""
}

// buildCopySource formats the bucket/key pair CopyObject and UploadPartCopy
// expect, URL-encoding the key so keys containing spaces or unicode survive
// the header transport. Each path segment is escaped individually so the
// key's own "/" separators aren't percent-encoded into a literal key S3
// won't find.
func buildCopySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

