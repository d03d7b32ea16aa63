package signalbus

import (
	"context"
	"testing"
	"time"
)

func TestWatchChangedReturnsLatestValue(t *testing.T) {
	w := NewWatch(CloneRun)

	done := make(chan CloneSignal, 1)
	go func() {
		v, err := w.Changed(context.Background())
		if err != nil {
			t.Errorf("Changed() error = %v", err)
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	w.Send(ClonePause)
	w.Send(CloneCancel)

	select {
	case got := <-done:
		if got != CloneCancel {
			t.Errorf("Changed() = %v, want the latest value %v", got, CloneCancel)
		}
	case <-time.After(time.Second):
		t.Fatal("Changed() never returned")
	}
}

func TestWatchChangedRespectsContextCancellation(t *testing.T) {
	w := NewWatch(IndexRun)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := w.Changed(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Changed() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestWatchMultipleObserversAllSeeTheChange(t *testing.T) {
	w := NewWatch(CloneRun)
	results := make(chan CloneSignal, 2)

	for i := 0; i < 2; i++ {
		go func() {
			v, _ := w.Changed(context.Background())
			results <- v
		}()
	}

	time.Sleep(10 * time.Millisecond)
	w.Send(CloneCancel)

	for i := 0; i < 2; i++ {
		select {
		case got := <-results:
			if got != CloneCancel {
				t.Errorf("observer saw %v, want %v", got, CloneCancel)
			}
		case <-time.After(time.Second):
			t.Fatal("an observer never received the change")
		}
	}
}
