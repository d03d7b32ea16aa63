package catalog

import "fmt"

// RecoverFromCrash resets state left behind by a process that exited while
// jobs or indexes were in flight. It must run once, before any engine is
// started, so that no job or index is ever observed mid-run without a
// live goroutine actually driving it.
//
// Clone jobs in "running" or "enumerating" move to "paused" and any of
// their "active" items move back to "pending", so a later clone_resume
// picks up exactly where the crash left off. Bucket indexes in "indexing"
// move to "idle"; their continuation_token is left intact so index_start
// resumes from the last saved page instead of restarting.
func (s *Store) RecoverFromCrash() error {
	jobs, err := s.FindCloneJobsByStatus(CloneStatusRunning, CloneStatusEnumerating)
	if err != nil {
		return fmt.Errorf("find interrupted clone jobs: %w", err)
	}
	for _, job := range jobs {
		if _, err := s.ResetActiveItems(job.ID); err != nil {
			return fmt.Errorf("reset active items for job %s: %w", job.ID, err)
		}
		if err := s.UpdateCloneJobStatus(job.ID, CloneStatusPaused); err != nil {
			return fmt.Errorf("pause interrupted job %s: %w", job.ID, err)
		}
	}

	states, err := s.ListIndexStates()
	if err != nil {
		return fmt.Errorf("list index states: %w", err)
	}
	for _, st := range states {
		if st.Status != IndexStatusIndexing {
			continue
		}
		if err := s.SetIndexStatus(st.TargetID, st.Bucket, IndexStatusIdle); err != nil {
			return fmt.Errorf("idle interrupted index %s/%s: %w", st.TargetID, st.Bucket, err)
		}
	}

	return nil
}
