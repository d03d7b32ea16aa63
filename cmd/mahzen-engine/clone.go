package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/config"
	"github.com/mahzen/engine/metrics"
	"github.com/mahzen/engine/signalbus"
	"github.com/spf13/cobra"
)

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Copy objects between buckets, same target or cross target",
}

var cloneStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Enumerate a source prefix and copy it to a destination",
	RunE:  runCloneStart,
}

var cloneResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused or crash-interrupted clone job",
	RunE:  runCloneResume,
}

var cloneCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a clone job",
	RunE:  runCloneCancel,
}

var cloneRetryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Retry a clone job's failed items",
	RunE:  runCloneRetryFailed,
}

var cloneStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a clone job's current progress or final report",
	RunE:  runCloneStatus,
}

func init() {
	cloneStartCmd.Flags().String("source-target", "", "source target id (required)")
	cloneStartCmd.Flags().String("source-bucket", "", "source bucket (required)")
	cloneStartCmd.Flags().String("source-prefix", "", "source prefix to enumerate")
	cloneStartCmd.Flags().String("dest-target", "", "destination target id (required)")
	cloneStartCmd.Flags().String("dest-bucket", "", "destination bucket (required)")
	cloneStartCmd.Flags().String("dest-prefix", "", "destination prefix to write under")
	cloneStartCmd.Flags().String("conflict-policy", catalog.ConflictOverwrite, "overwrite, skip, or overwriteIfNewer")
	for _, name := range []string{"source-target", "source-bucket", "dest-target", "dest-bucket"} {
		_ = cloneStartCmd.MarkFlagRequired(name)
	}

	cloneResumeCmd.Flags().String("job", "", "clone job id (required)")
	_ = cloneResumeCmd.MarkFlagRequired("job")

	cloneCancelCmd.Flags().String("job", "", "clone job id (required)")
	_ = cloneCancelCmd.MarkFlagRequired("job")

	cloneRetryFailedCmd.Flags().String("job", "", "clone job id (required)")
	_ = cloneRetryFailedCmd.MarkFlagRequired("job")

	cloneStatusCmd.Flags().String("job", "", "clone job id (required)")
	_ = cloneStatusCmd.MarkFlagRequired("job")

	cloneCmd.AddCommand(cloneStartCmd, cloneResumeCmd, cloneCancelCmd, cloneRetryFailedCmd, cloneStatusCmd)
}

// runForeground watches a clone job to a terminal status in this process:
// it installs a SIGINT/SIGTERM handler that sends clone_pause to the
// engine's live signal (clone_cancel on a second signal, for a caller that
// wants out immediately), and returns once wait returns; the final report
// is printed by wait itself.
func runForeground(jobID string, bus *signalbus.CloneBus, wait func() error) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- wait() }()

	interrupted := false
	for {
		select {
		case err := <-done:
			return err
		case <-sigs:
			if interrupted {
				bus.Send(jobID, signalbus.CloneCancel)
				fmt.Fprintln(os.Stderr, "second interrupt received, cancelling job")
				continue
			}
			interrupted = true
			bus.Send(jobID, signalbus.ClonePause)
			fmt.Fprintln(os.Stderr, "pausing job, interrupt again to cancel immediately")
		}
	}
}

func runCloneStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sourceTarget, _ := cmd.Flags().GetString("source-target")
	sourceBucket, _ := cmd.Flags().GetString("source-bucket")
	sourcePrefix, _ := cmd.Flags().GetString("source-prefix")
	destTarget, _ := cmd.Flags().GetString("dest-target")
	destBucket, _ := cmd.Flags().GetString("dest-bucket")
	destPrefix, _ := cmd.Flags().GetString("dest-prefix")
	conflictPolicy, _ := cmd.Flags().GetString("conflict-policy")
	if err := config.ValidateConflictPolicy(conflictPolicy); err != nil {
		return err
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := signalbus.NewCloneBus()
	engine := cloneEngine(store, bus, cfg.TempDir)

	jobID, err := engine.Start(context.Background(), catalog.CloneJob{
		SourceTargetID: sourceTarget, SourceBucket: sourceBucket, SourcePrefix: sourcePrefix,
		DestTargetID: destTarget, DestBucket: destBucket, DestPrefix: destPrefix,
		ConflictPolicy: conflictPolicy,
	})
	if err != nil {
		return fmt.Errorf("start clone job: %w", err)
	}
	fmt.Printf("clone job started: %s\n", jobID)

	return runForeground(jobID, bus, func() error {
		return waitForTerminal(store, jobID)
	})
}

func runCloneResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jobID, _ := cmd.Flags().GetString("job")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := signalbus.NewCloneBus()
	engine := cloneEngine(store, bus, cfg.TempDir)

	if err := engine.Resume(context.Background(), jobID); err != nil {
		return fmt.Errorf("resume clone job: %w", err)
	}

	return runForeground(jobID, bus, func() error {
		return waitForTerminal(store, jobID)
	})
}

func runCloneCancel(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	jobID, _ := cmd.Flags().GetString("job")
	engine := cloneEngine(store, signalbus.NewCloneBus(), "")
	if err := engine.Cancel(jobID); err != nil {
		return fmt.Errorf("cancel clone job: %w", err)
	}
	fmt.Printf("clone job cancelled: %s\n", jobID)
	return nil
}

func runCloneRetryFailed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jobID, _ := cmd.Flags().GetString("job")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := signalbus.NewCloneBus()
	engine := cloneEngine(store, bus, cfg.TempDir)
	if err := engine.RetryFailed(context.Background(), jobID); err != nil {
		return fmt.Errorf("retry failed items: %w", err)
	}

	return runForeground(jobID, bus, func() error {
		return waitForTerminal(store, jobID)
	})
}

func runCloneStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	jobID, _ := cmd.Flags().GetString("job")
	job, err := store.GetCloneJob(jobID)
	if err != nil {
		return fmt.Errorf("get clone job: %w", err)
	}
	printCloneJob(job)
	return nil
}

// waitForTerminal polls the store until jobID reaches a terminal status or
// pauses, printing progress along the way and a final metrics report at
// the end.
// The engine itself only signals completion through the store, so a
// foreground CLI invocation watches it the same way a second process would.
func waitForTerminal(store *catalog.Store, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		job, err := store.GetCloneJob(jobID)
		if err != nil {
			return fmt.Errorf("get clone job: %w", err)
		}
		switch job.Status {
		case catalog.CloneStatusCompleted, catalog.CloneStatusFailed, catalog.CloneStatusCancelled, catalog.CloneStatusPaused:
			printCloneJob(job)
			return nil
		default:
			fmt.Printf("\r%s: completed %d, failed %d, skipped %d, of %d items", job.Status,
				job.CompletedItems, job.FailedItems, job.SkippedItems, job.TotalItems)
		}
	}
	return nil
}

func printCloneJob(job catalog.CloneJob) {
	var duration time.Duration
	if job.CompletedAt > 0 {
		duration = time.Unix(job.CompletedAt, 0).Sub(time.Unix(job.CreatedAt, 0))
	}
	var throughput float64
	if duration > 0 {
		throughput = float64(job.CompletedItems) / duration.Seconds()
	}
	report := metrics.JobReport{
		StartTime:  time.Unix(job.CreatedAt, 0),
		EndTime:    time.Unix(job.CompletedAt, 0),
		Completed:  job.CompletedItems,
		Failed:     job.FailedItems,
		Skipped:    job.SkippedItems,
		BytesMoved: job.TransferredBytes,
		Duration:   duration,
		Throughput: throughput,
	}
	fmt.Printf("\njob %s: %s, %s\n", job.ID, job.Status, report.String())
}
