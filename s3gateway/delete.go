package s3gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteObjectsChunk is the maximum number of keys S3's DeleteObjects
// accepts per request.
const deleteObjectsChunk = 1000

// DeleteObjects removes every key in keys, batching into requests of at
// most deleteObjectsChunk keys.
func (g *Gateway) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	for start := 0; start < len(keys); start += deleteObjectsChunk {
		end := start + deleteObjectsChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		objects := make([]types.ObjectIdentifier, len(chunk))
		for i, key := range chunk {
			k := key
			objects[i] = types.ObjectIdentifier{Key: &k}
		}

		_, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &bucket,
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return fmt.Errorf("delete objects batch starting at %d: %w", start, err)
		}
	}
	return nil
}

// CreateFolder writes the zero-byte, trailing-slash marker object S3
// conventionally uses to represent an empty folder.
func (g *Gateway) CreateFolder(ctx context.Context, bucket, key string) error {
	folderKey := key
	if len(folderKey) == 0 || folderKey[len(folderKey)-1] != '/' {
		folderKey += "/"
	}

	contentType := "application/x-directory"
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &folderKey,
		Body:        strings.NewReader(""),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("create folder %s: %w", folderKey, err)
	}
	return nil
}
