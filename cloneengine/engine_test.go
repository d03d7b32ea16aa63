package cloneengine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/s3gateway"
	"github.com/mahzen/engine/signalbus"
)

// fakeStore implements Store entirely in memory, mirroring the shape of
// catalog.Store's clone tables without a database underneath.
type fakeStore struct {
	mu    sync.Mutex
	job   catalog.CloneJob
	items map[string]*catalog.CloneJobItem
	onGet func()
}

func newFakeStore(job catalog.CloneJob) *fakeStore {
	return &fakeStore{job: job, items: map[string]*catalog.CloneJobItem{}}
}

func (f *fakeStore) InsertCloneJob(job catalog.CloneJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job = job
	return nil
}

func (f *fakeStore) ResetActiveItems(jobID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, it := range f.items {
		if it.Status == catalog.ItemStatusActive {
			it.Status = catalog.ItemStatusPending
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ResetFailedItems(jobID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, it := range f.items {
		if it.Status == catalog.ItemStatusFailed {
			it.Status = catalog.ItemStatusPending
			it.ErrorMessage = ""
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetCloneJob(id string) (catalog.CloneJob, error) {
	if f.onGet != nil {
		f.onGet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job, nil
}

func (f *fakeStore) UpdateCloneJobStatus(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job.Status = status
	return nil
}

func (f *fakeStore) UpdateCloneJobProgress(id string, completed, failed, skipped, transferredBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job.CompletedItems = completed
	f.job.FailedItems = failed
	f.job.SkippedItems = skipped
	f.job.TransferredBytes = transferredBytes
	return nil
}

func (f *fakeStore) CompleteCloneJob(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job.Status = status
	f.job.CompletedAt = time.Now().Unix()
	return nil
}

func (f *fakeStore) SaveEnumerationState(id, token string, totalItems, totalBytes int64, complete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job.EnumerationToken = token
	f.job.TotalItems = totalItems
	f.job.TotalBytes = totalBytes
	f.job.EnumerationComplete = complete
	return nil
}

func (f *fakeStore) InsertItemsBatch(items []catalog.CloneJobItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		it := it
		if _, exists := f.items[it.ID]; !exists {
			f.items[it.ID] = &it
		}
	}
	return nil
}

func (f *fakeStore) ListPendingItems(jobID string, limit int64) ([]catalog.CloneJobItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.CloneJobItem
	for _, it := range f.items {
		if it.Status == catalog.ItemStatusPending {
			out = append(out, *it)
			if int64(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateItemStatus(id, status, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return fmt.Errorf("no such item %s", id)
	}
	it.Status = status
	it.ErrorMessage = errorMessage
	return nil
}

func (f *fakeStore) CountItemsByStatus(jobID string) (catalog.ItemStatusCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c catalog.ItemStatusCounts
	for _, it := range f.items {
		switch it.Status {
		case catalog.ItemStatusCompleted:
			c.Completed++
			c.TotalTransferredBytes += it.Size
		case catalog.ItemStatusFailed:
			c.Failed++
		case catalog.ItemStatusSkipped:
			c.Skipped++
		case catalog.ItemStatusPending:
			c.Pending++
		case catalog.ItemStatusActive:
			c.Active++
		}
	}
	return c, nil
}

// fakeGateway implements the engine's Gateway interface against an
// in-memory bucket keyed by "bucket/key".
type fakeGateway struct {
	mu      sync.Mutex
	objects map[string]string
	fail    map[string]error
	headErr map[string]error
	panics  map[string]bool
}

func newFakeGateway(seed map[string]string) *fakeGateway {
	g := &fakeGateway{objects: map[string]string{}, fail: map[string]error{}, headErr: map[string]error{}, panics: map[string]bool{}}
	for k, v := range seed {
		g.objects[k] = v
	}
	return g
}

// ListRecursivePage returns the whole matching set as a single
// non-truncated page; tests don't exercise multi-page enumeration here
// (s3gateway's own tests cover real pagination against the SDK types).
func (g *fakeGateway) ListRecursivePage(ctx context.Context, bucket, prefix, continuationToken string) (s3gateway.ObjectListPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []s3gateway.ObjectEntry
	for key, body := range g.objects {
		if !strings.HasPrefix(key, bucket+"/"+prefix) {
			continue
		}
		out = append(out, s3gateway.ObjectEntry{
			Key:          strings.TrimPrefix(key, bucket+"/"),
			Size:         int64(len(body)),
			LastModified: "2024-01-01T00:00:00Z",
			ETag:         "etag-" + key,
		})
	}
	return s3gateway.ObjectListPage{Entries: out}, nil
}

func (g *fakeGateway) HeadObject(ctx context.Context, bucket, key string) (s3gateway.ObjectEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	full := bucket + "/" + key
	if err, ok := g.headErr[full]; ok {
		return s3gateway.ObjectEntry{}, err
	}
	body, ok := g.objects[full]
	if !ok {
		return s3gateway.ObjectEntry{}, fmt.Errorf("not found: %s: %w", full, s3gateway.ErrNotFound)
	}
	return s3gateway.ObjectEntry{Key: key, Size: int64(len(body)), LastModified: "2024-01-01T00:00:00Z"}, nil
}

func (g *fakeGateway) CopyObject(ctx context.Context, srcBucket, srcKey, destBucket, destKey string, size int64) error {
	g.mu.Lock()
	if g.panics[srcBucket+"/"+srcKey] {
		g.mu.Unlock()
		panic("simulated copy panic for " + srcKey)
	}
	defer g.mu.Unlock()
	if err := g.fail[srcBucket+"/"+srcKey]; err != nil {
		return err
	}
	g.objects[destBucket+"/"+destKey] = g.objects[srcBucket+"/"+srcKey]
	return nil
}

func (g *fakeGateway) GetObjectStream(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	g.mu.Lock()
	body, ok := g.objects[bucket+"/"+key]
	g.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("not found: %s/%s", bucket, key)
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func (g *fakeGateway) PutStream(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[bucket+"/"+key] = string(data)
	return nil
}

func baseJob(sameTarget bool) catalog.CloneJob {
	return catalog.CloneJob{
		ID:             "job-1",
		Status:         catalog.CloneStatusPending,
		SourceTargetID: "src",
		SourceBucket:   "bucket-a",
		SourcePrefix:   "in/",
		DestTargetID:   "dst",
		DestBucket:     "bucket-b",
		DestPrefix:     "out/",
		ConflictPolicy: catalog.ConflictOverwrite,
		IsSameTarget:   sameTarget,
	}
}

func TestRunHappyPathSameTarget(t *testing.T) {
	job := baseJob(true)
	store := newFakeStore(job)
	gw := newFakeGateway(map[string]string{
		"bucket-a/in/one.txt": "hello",
		"bucket-a/in/two.txt": "world",
	})

	e := &Engine{
		Store: store,
		Gateways: func(targetID string) (Gateway, error) {
			return gw, nil
		},
		Signals: signalbus.NewCloneBus(),
	}

	if err := e.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.job.Status != catalog.CloneStatusCompleted {
		t.Errorf("job status = %q, want completed", store.job.Status)
	}
	if len(store.items) != 2 {
		t.Fatalf("items = %d, want 2", len(store.items))
	}
	for _, it := range store.items {
		if it.Status != catalog.ItemStatusCompleted {
			t.Errorf("item %s status = %q, want completed", it.ID, it.Status)
		}
	}
	if gw.objects["bucket-b/out/one.txt"] != "hello" {
		t.Errorf("dest object missing or wrong: %q", gw.objects["bucket-b/out/one.txt"])
	}
}

func TestRunHappyPathCrossTarget(t *testing.T) {
	job := baseJob(false)
	store := newFakeStore(job)
	src := newFakeGateway(map[string]string{"bucket-a/in/one.txt": "payload"})
	dst := newFakeGateway(nil)

	e := &Engine{
		Store: store,
		Gateways: func(targetID string) (Gateway, error) {
			if targetID == "src" {
				return src, nil
			}
			return dst, nil
		},
		Signals: signalbus.NewCloneBus(),
	}

	if err := e.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if dst.objects["bucket-b/out/one.txt"] != "payload" {
		t.Errorf("cross-target copy did not land: %v", dst.objects)
	}
}

func TestRunConflictSkipPolicy(t *testing.T) {
	job := baseJob(true)
	job.ConflictPolicy = catalog.ConflictSkip
	store := newFakeStore(job)
	gw := newFakeGateway(map[string]string{
		"bucket-a/in/one.txt": "new",
		"bucket-b/out/one.txt": "already-there",
	})

	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  signalbus.NewCloneBus(),
	}

	if err := e.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gw.objects["bucket-b/out/one.txt"] != "already-there" {
		t.Errorf("skip policy overwrote existing destination: %q", gw.objects["bucket-b/out/one.txt"])
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, it := range store.items {
		if it.Status != catalog.ItemStatusSkipped {
			t.Errorf("item status = %q, want skipped", it.Status)
		}
	}
}

func TestRunConflictSkipPolicyFailsItemOnGenuineHeadError(t *testing.T) {
	job := baseJob(true)
	job.ConflictPolicy = catalog.ConflictSkip
	store := newFakeStore(job)
	gw := newFakeGateway(map[string]string{"bucket-a/in/one.txt": "new"})
	gw.headErr["bucket-b/out/one.txt"] = fmt.Errorf("simulated transient head failure")

	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  signalbus.NewCloneBus(),
	}

	if err := e.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, it := range store.items {
		if it.Status != catalog.ItemStatusFailed {
			t.Errorf("item status = %q, want failed on a non-not-found HeadObject error", it.Status)
		}
	}
	if gw.objects["bucket-b/out/one.txt"] != "" {
		t.Errorf("destination was written despite the HeadObject failure: %q", gw.objects["bucket-b/out/one.txt"])
	}
}

func TestRunItemPanicIsRecoveredAndFailsOnlyThatItem(t *testing.T) {
	job := baseJob(true)
	store := newFakeStore(job)
	gw := newFakeGateway(map[string]string{
		"bucket-a/in/bad.txt":  "x",
		"bucket-a/in/good.txt": "y",
	})
	gw.panics["bucket-a/in/bad.txt"] = true

	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  signalbus.NewCloneBus(),
	}

	if err := e.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.job.Status != catalog.CloneStatusCompleted {
		t.Errorf("job status = %q, want completed despite an item panic", store.job.Status)
	}
	for _, it := range store.items {
		switch it.SourceKey {
		case "in/bad.txt":
			if it.Status != catalog.ItemStatusFailed {
				t.Errorf("panicking item status = %q, want failed", it.Status)
			}
			if it.ErrorMessage == "" {
				t.Errorf("expected a recorded error message for the panicking item")
			}
		case "in/good.txt":
			if it.Status != catalog.ItemStatusCompleted {
				t.Errorf("sibling item status = %q, want completed, process must survive the panic", it.Status)
			}
		}
	}
}

func TestRunItemFailureStillCompletesJob(t *testing.T) {
	job := baseJob(true)
	store := newFakeStore(job)
	gw := newFakeGateway(map[string]string{"bucket-a/in/bad.txt": "x"})
	gw.fail["bucket-a/in/bad.txt"] = fmt.Errorf("simulated copy failure")

	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  signalbus.NewCloneBus(),
	}

	if err := e.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.job.Status != catalog.CloneStatusCompleted {
		t.Errorf("job status = %q, want completed despite item failure", store.job.Status)
	}
	for _, it := range store.items {
		if it.Status != catalog.ItemStatusFailed {
			t.Errorf("item status = %q, want failed", it.Status)
		}
		if it.ErrorMessage == "" {
			t.Errorf("expected error message to be recorded")
		}
	}
}

func TestRunCancelViaSignal(t *testing.T) {
	job := baseJob(true)
	store := newFakeStore(job)
	gw := newFakeGateway(map[string]string{"bucket-a/in/one.txt": "x"})

	bus := signalbus.NewCloneBus()
	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  bus,
	}

	// Block the very first GetCloneJob call (made right after Run
	// registers the job's Watch) until the test has delivered Cancel, so
	// the first checkSignal call is guaranteed to observe it before any
	// listing or copying happens.
	unblocked := make(chan struct{})
	store.onGet = func() {
		<-unblocked
		store.onGet = nil
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), job.ID) }()

	deadline := time.After(time.Second)
	for {
		if w, ok := bus.Get(job.ID); ok {
			w.Send(signalbus.CloneCancel)
			close(unblocked)
			break
		}
		select {
		case <-deadline:
			t.Fatal("clone job never registered a Watch")
		case <-time.After(time.Millisecond):
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.job.Status != catalog.CloneStatusCancelled {
		t.Errorf("job status = %q, want cancelled", store.job.Status)
	}
}
