package s3gateway

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the subset of the S3 SDK client the gateway calls. Narrowing
// to an interface here, rather than depending on *s3.Client directly,
// is what lets this package's tests substitute a hand-rolled fake
// (mockClient). The engine packages fake their own Gateway interfaces.
type Client interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartCopy(ctx context.Context, params *s3.UploadPartCopyInput, optFns ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Compile-time check that the real SDK client satisfies Client.
var _ Client = (*s3.Client)(nil)

// Target describes the S3-compatible endpoint a Gateway talks to.
type Target struct {
	Provider       string
	Endpoint       string
	Region         string
	ForcePathStyle bool
}

// Credentials is the access key pair (and optional session token) used to
// authenticate against a Target.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Gateway is a Target bound to its Credentials via a live S3 client.
type Gateway struct {
	client  Client
	presign *s3.PresignClient
}

// defaultRegion mirrors the provider-specific fallback: Cloudflare R2
// rejects most AWS region names but accepts the sentinel "auto".
func defaultRegion(provider string) string {
	if strings.EqualFold(provider, "Cloudflare R2") {
		return "auto"
	}
	return "us-east-1"
}

// New builds a Gateway for one target, validating credentials and applying
// the endpoint/path-style/region overrides an S3-compatible provider needs.
func New(ctx context.Context, target Target, creds Credentials) (*Gateway, error) {
	if strings.TrimSpace(creds.AccessKeyID) == "" || strings.TrimSpace(creds.SecretAccessKey) == "" {
		return nil, fmt.Errorf("s3gateway: missing access key credentials for target")
	}

	region := strings.TrimSpace(target.Region)
	if region == "" {
		region = defaultRegion(target.Provider)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = target.ForcePathStyle
		if endpoint := strings.TrimSpace(target.Endpoint); endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})

	return &Gateway{client: client, presign: s3.NewPresignClient(client)}, nil
}

// newWithClient builds a Gateway around an already-constructed Client,
// used by tests to inject a fake.
func newWithClient(client Client) *Gateway {
	return &Gateway{client: client}
}
