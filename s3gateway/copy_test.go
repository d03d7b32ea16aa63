package s3gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestCopyObjectSingleShotUnderThreshold(t *testing.T) {
	var gotSource, gotBucket, gotKey string
	client := &mockClient{
		copyObjectFn: func(_ context.Context, in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
			gotSource = *in.CopySource
			gotBucket = *in.Bucket
			gotKey = *in.Key
			return &s3.CopyObjectOutput{}, nil
		},
	}
	g := newWithClient(client)

	err := g.CopyObject(context.Background(), "src-bucket", "a.txt", "dst-bucket", "archive/a.txt", 1024)
	if err != nil {
		t.Fatalf("CopyObject() error = %v", err)
	}
	if gotSource != "src-bucket/a.txt" {
		t.Errorf("CopySource = %q, want %q", gotSource, "src-bucket/a.txt")
	}
	if gotBucket != "dst-bucket" || gotKey != "archive/a.txt" {
		t.Errorf("CopyObject() dest = %s/%s, want dst-bucket/archive/a.txt", gotBucket, gotKey)
	}
}

func TestCopyObjectPreservesPathSeparatorsInNestedKeys(t *testing.T) {
	var gotSource string
	client := &mockClient{
		copyObjectFn: func(_ context.Context, in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
			gotSource = *in.CopySource
			return &s3.CopyObjectOutput{}, nil
		},
	}
	g := newWithClient(client)

	err := g.CopyObject(context.Background(), "src-bucket", "a/b c/d.txt", "dst-bucket", "archive/d.txt", 1024)
	if err != nil {
		t.Fatalf("CopyObject() error = %v", err)
	}
	if gotSource != "src-bucket/a/b%20c/d.txt" {
		t.Errorf("CopySource = %q, want %q", gotSource, "src-bucket/a/b%20c/d.txt")
	}
}

func TestCopyObjectMultipartOverThreshold(t *testing.T) {
	const size = multipartThreshold + copyPartSize + 1
	// One byte over (multipartThreshold+copyPartSize) still needs
	// ceil(size/copyPartSize) parts to cover the whole object, not a fixed
	// small number; the threshold and part size aren't multiples of each
	// other, so the exact count is computed below rather than hardcoded.
	wantParts := int(size / copyPartSize)
	if size%copyPartSize != 0 {
		wantParts++
	}

	var partCalls []string
	var completed bool
	var aborted bool

	client := &mockClient{
		createMultipartUploadFn: func(_ context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
		},
		uploadPartCopyFn: func(_ context.Context, in *s3.UploadPartCopyInput) (*s3.UploadPartCopyOutput, error) {
			partCalls = append(partCalls, *in.CopySourceRange)
			etag := "etag-" + *in.CopySourceRange
			return &s3.UploadPartCopyOutput{
				CopyPartResult: &types.CopyPartResult{ETag: aws.String(etag)},
			}, nil
		},
		completeMultipartUploadFn: func(_ context.Context, in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
			completed = true
			if len(in.MultipartUpload.Parts) != len(partCalls) {
				t.Errorf("CompleteMultipartUpload got %d parts, want %d", len(in.MultipartUpload.Parts), len(partCalls))
			}
			for i, part := range in.MultipartUpload.Parts {
				if part.PartNumber == nil || *part.PartNumber != int32(i+1) {
					t.Errorf("part %d has PartNumber = %v, want %d", i, part.PartNumber, i+1)
				}
			}
			return &s3.CompleteMultipartUploadOutput{}, nil
		},
		abortMultipartUploadFn: func(_ context.Context, in *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
			aborted = true
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}
	g := newWithClient(client)

	err := g.CopyObject(context.Background(), "src-bucket", "big.bin", "dst-bucket", "big.bin", size)
	if err != nil {
		t.Fatalf("CopyObject() error = %v", err)
	}
	if len(partCalls) != wantParts {
		t.Fatalf("UploadPartCopy called %d times, want %d", len(partCalls), wantParts)
	}
	if partCalls[0] != "bytes=0-104857599" {
		t.Errorf("first part range = %q, want bytes=0-104857599", partCalls[0])
	}
	lastRange := fmt.Sprintf("bytes=%d-%d", int64(wantParts-1)*copyPartSize, size-1)
	if partCalls[len(partCalls)-1] != lastRange {
		t.Errorf("last part range = %q, want %q", partCalls[len(partCalls)-1], lastRange)
	}
	if !completed {
		t.Errorf("CompleteMultipartUpload was not called")
	}
	if aborted {
		t.Errorf("AbortMultipartUpload was called on a successful copy")
	}
}

func TestCopyObjectMultipartAbortsOnPartFailure(t *testing.T) {
	aborted := false
	client := &mockClient{
		createMultipartUploadFn: func(_ context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
		},
		uploadPartCopyFn: func(_ context.Context, in *s3.UploadPartCopyInput) (*s3.UploadPartCopyOutput, error) {
			return nil, errors.New("network error")
		},
		abortMultipartUploadFn: func(_ context.Context, in *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
			aborted = true
			if *in.UploadId != "upload-1" {
				t.Errorf("AbortMultipartUpload UploadId = %q, want upload-1", *in.UploadId)
			}
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}
	g := newWithClient(client)

	err := g.CopyObject(context.Background(), "src-bucket", "big.bin", "dst-bucket", "big.bin", multipartThreshold+1)
	if err == nil {
		t.Fatal("CopyObject() error = nil, want error on part failure")
	}
	if !aborted {
		t.Errorf("AbortMultipartUpload was not called after a part failure")
	}
}
