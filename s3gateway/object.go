package s3gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// progressThrottle bounds how often GetStream and DownloadZip call their
// progress callback while streaming a large object.
const progressThrottle = 50 * time.Millisecond

// ProgressFunc reports bytes transferred so far against the expected total.
// total is 0 when the source did not report a content length.
type ProgressFunc func(transferred, total int64)

// ErrNotFound is returned by HeadObject when the key does not exist. Callers
// that need "destination absent, proceed" semantics (conflict resolution)
// check for it with errors.Is; any other HeadObject error is a genuine
// failure (access denied, throttling, timeout) and must not be treated the
// same way.
var ErrNotFound = errors.New("s3gateway: object not found")

// HeadObject returns an object's size, ETag, and last-modified time
// without downloading its body. It returns ErrNotFound, wrapped, when the
// key does not exist; use errors.Is(err, ErrNotFound) to distinguish that
// from a genuine HEAD failure.
func (g *Gateway) HeadObject(ctx context.Context, bucket, key string) (ObjectEntry, error) {
	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return ObjectEntry{}, fmt.Errorf("head object %s: %w", key, ErrNotFound)
		}
		return ObjectEntry{}, fmt.Errorf("head object %s: %w", key, err)
	}
	return ObjectEntry{
		Key:          key,
		Size:         int64Value(out.ContentLength),
		ETag:         stringValue(out.ETag),
		LastModified: timeValue(out.LastModified),
		StorageClass: string(out.StorageClass),
	}, nil
}

// isNotFound reports whether err is a missing-key response. HeadObject has
// no response body, so the SDK can't always deserialize the modeled
// types.NotFound; non-AWS endpoints in particular surface a generic API
// error whose code is the only signal, hence the smithy.APIError fallback.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

// PutFile uploads the file at sourcePath to bucket/key, guessing the
// content type from the key's extension.
func (g *Gateway) PutFile(ctx context.Context, bucket, key, sourcePath string) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer f.Close()

	contentType := guessContentType(key)
	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetStream downloads bucket/key to destPath, reporting progress through
// onProgress at most once per progressThrottle, plus a guaranteed final
// call once the transfer completes.
func (g *Gateway) GetStream(ctx context.Context, bucket, key, destPath string, onProgress ProgressFunc) error {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	total := int64Value(out.ContentLength)

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", destPath, err)
		}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer file.Close()

	downloaded, err := copyWithProgress(file, out.Body, total, onProgress)
	if err != nil {
		return fmt.Errorf("read object stream for %s: %w", key, err)
	}

	if onProgress != nil {
		finalTotal := total
		if finalTotal <= 0 {
			finalTotal = downloaded
		}
		onProgress(downloaded, finalTotal)
	}
	return nil
}

// GetObjectStream opens bucket/key for reading without buffering it to
// disk and returns the body with its content length. The clone engine's
// cross-target path copies this body to a temp file before uploading it.
func (g *Gateway) GetObjectStream(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, 0, fmt.Errorf("get object stream %s: %w", key, err)
	}
	return out.Body, int64Value(out.ContentLength), nil
}

// PutStream uploads body to bucket/key, guessing the content type from key.
// size is passed through as the declared content length; pass 0 if unknown.
func (g *Gateway) PutStream(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	contentType := guessContentType(key)
	input := &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        body,
		ContentType: &contentType,
	}
	if size > 0 {
		input.ContentLength = &size
	}
	if _, err := g.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put stream %s: %w", key, err)
	}
	return nil
}

// copyWithProgress streams src into dst in 256 KiB chunks, invoking
// onProgress at most once per progressThrottle window.
func copyWithProgress(dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, 256*1024)
	var transferred int64
	lastEmit := time.Now()

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return transferred, err
			}
			transferred += int64(n)

			if onProgress != nil && (time.Since(lastEmit) >= progressThrottle || transferred == total) {
				onProgress(transferred, total)
				lastEmit = time.Now()
			}
		}
		if readErr == io.EOF {
			return transferred, nil
		}
		if readErr != nil {
			return transferred, readErr
		}
	}
}
