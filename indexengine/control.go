package indexengine

import (
	"context"

	"github.com/mahzen/engine/logging"
	"github.com/mahzen/engine/signalbus"
)

// Start begins (or resumes) indexing a bucket: it cancels any signal
// already live for (targetID, bucket) so a stale goroutine from a prior
// run can't race the new one, then launches a fresh goroutine. fresh, if
// true, forces a full rescan regardless of any saved continuation token.
func (e *Engine) Start(ctx context.Context, targetID, bucket string, fresh bool) {
	key := signalbus.IndexKey(targetID, bucket)
	e.Signals.Send(key, signalbus.IndexCancel)
	e.Signals.Remove(key)

	go func() {
		if err := e.Run(ctx, targetID, bucket, fresh); err != nil {
			log := logging.WithIndex(targetID, bucket)
			log.Error().Err(err).Msg("index goroutine exited with error")
		}
	}()
}

// Cancel implements index_cancel: it sends Cancel to the pair's live
// signal, returning false if no goroutine is currently indexing it.
func (e *Engine) Cancel(targetID, bucket string) bool {
	return e.Signals.Send(signalbus.IndexKey(targetID, bucket), signalbus.IndexCancel)
}

// Delete implements index_delete: cancel any running index for the pair,
// then remove its state and object rows.
func (e *Engine) Delete(targetID, bucket string) error {
	e.Cancel(targetID, bucket)
	return e.Store.DeleteIndex(targetID, bucket)
}
