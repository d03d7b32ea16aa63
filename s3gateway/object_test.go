package s3gateway

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestGetStreamWritesFileAndReportsFinalProgress(t *testing.T) {
	body := strings.Repeat("x", 300*1024) // spans more than one 256 KiB chunk
	client := &mockClient{
		getObjectFn: func(_ context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(strings.NewReader(body)),
				ContentLength: aws.Int64(int64(len(body))),
			}, nil
		},
	}
	g := newWithClient(client)

	destPath := filepath.Join(t.TempDir(), "nested", "out.bin")
	var lastTransferred, lastTotal int64
	err := g.GetStream(context.Background(), "bucket", "key", destPath, func(transferred, total int64) {
		lastTransferred, lastTotal = transferred, total
	})
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != body {
		t.Errorf("downloaded content length = %d, want %d", len(got), len(body))
	}
	if lastTransferred != int64(len(body)) || lastTotal != int64(len(body)) {
		t.Errorf("final progress = (%d, %d), want (%d, %d)", lastTransferred, lastTotal, len(body), len(body))
	}
}

func TestHeadObjectMapsFields(t *testing.T) {
	client := &mockClient{
		headObjectFn: func(_ context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{
				ContentLength: aws.Int64(42),
				ETag:          aws.String("\"abc\""),
			}, nil
		},
	}
	g := newWithClient(client)

	entry, err := g.HeadObject(context.Background(), "bucket", "key")
	if err != nil {
		t.Fatalf("HeadObject() error = %v", err)
	}
	if entry.Size != 42 || entry.ETag != "\"abc\"" {
		t.Errorf("HeadObject() = %+v, want size 42 and etag", entry)
	}
}

func TestHeadObjectReturnsErrNotFoundForNoSuchKey(t *testing.T) {
	client := &mockClient{
		headObjectFn: func(_ context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		},
	}
	g := newWithClient(client)

	_, err := g.HeadObject(context.Background(), "bucket", "missing-key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("HeadObject() error = %v, want errors.Is(err, ErrNotFound)", err)
	}
}

func TestHeadObjectReturnsErrNotFoundForNotFound(t *testing.T) {
	client := &mockClient{
		headObjectFn: func(_ context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, &types.NotFound{}
		},
	}
	g := newWithClient(client)

	_, err := g.HeadObject(context.Background(), "bucket", "missing-key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("HeadObject() error = %v, want errors.Is(err, ErrNotFound)", err)
	}
}

func TestHeadObjectReturnsErrNotFoundForGenericAPIError(t *testing.T) {
	// HEAD responses carry no body, so non-AWS endpoints often surface the
	// missing key as a bare API error code instead of the modeled type.
	client := &mockClient{
		headObjectFn: func(_ context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
		},
	}
	g := newWithClient(client)

	_, err := g.HeadObject(context.Background(), "bucket", "missing-key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("HeadObject() error = %v, want errors.Is(err, ErrNotFound)", err)
	}
}

func TestHeadObjectPropagatesOtherErrors(t *testing.T) {
	client := &mockClient{
		headObjectFn: func(_ context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	g := newWithClient(client)

	_, err := g.HeadObject(context.Background(), "bucket", "key")
	if err == nil {
		t.Fatal("HeadObject() error = nil, want a propagated error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("HeadObject() error = %v, want it not to classify as ErrNotFound", err)
	}
}

func TestPutFileSetsGuessedContentType(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "report.json")
	if err := os.WriteFile(srcPath, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	var gotContentType string
	client := &mockClient{
		putObjectFn: func(_ context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			gotContentType = *in.ContentType
			return &s3.PutObjectOutput{}, nil
		},
	}
	g := newWithClient(client)

	if err := g.PutFile(context.Background(), "bucket", "reports/report.json", srcPath); err != nil {
		t.Fatalf("PutFile() error = %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("PutFile() content type = %q, want application/json", gotContentType)
	}
}
