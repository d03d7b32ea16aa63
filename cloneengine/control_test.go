package cloneengine

import (
	"context"
	"testing"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/signalbus"
)

func TestStartDerivesIsSameTargetAndRuns(t *testing.T) {
	store := newFakeStore(catalog.CloneJob{})
	gw := newFakeGateway(map[string]string{"bucket-a/in/one.txt": "hello"})

	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  signalbus.NewCloneBus(),
	}

	jobID, err := e.Start(context.Background(), catalog.CloneJob{
		SourceTargetID: "same", SourceBucket: "bucket-a", SourcePrefix: "in/",
		DestTargetID: "same", DestBucket: "bucket-a", DestPrefix: "out/",
		ConflictPolicy: catalog.ConflictOverwrite,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if jobID == "" {
		t.Fatal("Start() returned empty job id")
	}

	deadline := time.Now().Add(time.Second)
	for {
		store.mu.Lock()
		status := store.job.Status
		isSame := store.job.IsSameTarget
		store.mu.Unlock()
		if status == catalog.CloneStatusCompleted {
			if !isSame {
				t.Error("IsSameTarget = false, want true for matching target ids")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, last status = %q", status)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCancelWithoutLiveSignalStampsTerminalStatus(t *testing.T) {
	job := baseJob(true)
	job.Status = catalog.CloneStatusPaused
	store := newFakeStore(job)

	e := &Engine{Store: store, Signals: signalbus.NewCloneBus()}

	if err := e.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.job.Status != catalog.CloneStatusCancelled {
		t.Errorf("status = %q, want cancelled", store.job.Status)
	}
}

func TestPauseSendsSignalWhenLive(t *testing.T) {
	bus := signalbus.NewCloneBus()
	w := bus.Start("job-1")

	e := &Engine{Signals: bus}
	if !e.Pause("job-1") {
		t.Fatal("Pause() = false, want true for a live job")
	}
	if w.Value() != signalbus.ClonePause {
		t.Errorf("watch value = %v, want ClonePause", w.Value())
	}
	if e.Pause("no-such-job") {
		t.Error("Pause() = true for a job with no live signal, want false")
	}
}

func TestRetryFailedResetsItemsAndRespawns(t *testing.T) {
	job := baseJob(true)
	job.EnumerationComplete = true
	store := newFakeStore(job)
	store.items["item-1"] = &catalog.CloneJobItem{
		ID: "item-1", JobID: job.ID, SourceKey: "in/one.txt", DestKey: "out/one.txt",
		Status: catalog.ItemStatusFailed, ErrorMessage: "boom",
	}
	gw := newFakeGateway(map[string]string{"bucket-a/in/one.txt": "hello"})

	e := &Engine{
		Store:    store,
		Gateways: func(targetID string) (Gateway, error) { return gw, nil },
		Signals:  signalbus.NewCloneBus(),
	}

	if err := e.RetryFailed(context.Background(), job.ID); err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		store.mu.Lock()
		status := store.job.Status
		store.mu.Unlock()
		if status == catalog.CloneStatusCompleted {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed after retry, last status = %q", status)
		}
		time.Sleep(time.Millisecond)
	}
}
