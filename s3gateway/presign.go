package s3gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PresignGet returns a time-limited URL for downloading bucket/key directly
// from the object store, bypassing the engine entirely.
func (g *Gateway) PresignGet(ctx context.Context, bucket, key string, expiresIn time.Duration) (string, error) {
	if g.presign == nil {
		return "", fmt.Errorf("presign get %s: gateway has no presign client configured", key)
	}

	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}
