package s3gateway

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockClient is a hand-rolled fake of Client: each method delegates to an
// optional function field, so a test only wires up the calls it exercises.
type mockClient struct {
	listBucketsFn             func(context.Context, *s3.ListBucketsInput) (*s3.ListBucketsOutput, error)
	listObjectsV2Fn           func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	getObjectFn               func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	putObjectFn               func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	headObjectFn              func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	deleteObjectsFn           func(context.Context, *s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error)
	copyObjectFn              func(context.Context, *s3.CopyObjectInput) (*s3.CopyObjectOutput, error)
	createMultipartUploadFn   func(context.Context, *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error)
	uploadPartCopyFn          func(context.Context, *s3.UploadPartCopyInput) (*s3.UploadPartCopyOutput, error)
	completeMultipartUploadFn func(context.Context, *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error)
	abortMultipartUploadFn    func(context.Context, *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error)
}

func (m *mockClient) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return m.listBucketsFn(ctx, in)
}

func (m *mockClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return m.listObjectsV2Fn(ctx, in)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.getObjectFn(ctx, in)
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.putObjectFn(ctx, in)
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return m.headObjectFn(ctx, in)
}

func (m *mockClient) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	return m.deleteObjectsFn(ctx, in)
}

func (m *mockClient) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	return m.copyObjectFn(ctx, in)
}

func (m *mockClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return m.createMultipartUploadFn(ctx, in)
}

func (m *mockClient) UploadPartCopy(ctx context.Context, in *s3.UploadPartCopyInput, _ ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error) {
	return m.uploadPartCopyFn(ctx, in)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return m.completeMultipartUploadFn(ctx, in)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return m.abortMultipartUploadFn(ctx, in)
}

var _ Client = (*mockClient)(nil)
