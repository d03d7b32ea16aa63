package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/signalbus"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and query a bucket's queryable object index",
}

var indexStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Index (or resume indexing) a bucket",
	RunE:  runIndexStart,
}

var indexCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel an in-progress index run",
	RunE:  runIndexCancel,
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a bucket's index state and object rows",
	RunE:  runIndexDelete,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a bucket's current index state",
	RunE:  runIndexStatus,
}

func init() {
	indexStartCmd.Flags().String("target", "", "target id (required)")
	indexStartCmd.Flags().String("bucket", "", "bucket name (required)")
	indexStartCmd.Flags().Bool("fresh", false, "purge existing rows and force a full rescan")
	_ = indexStartCmd.MarkFlagRequired("target")
	_ = indexStartCmd.MarkFlagRequired("bucket")

	indexCancelCmd.Flags().String("target", "", "target id (required)")
	indexCancelCmd.Flags().String("bucket", "", "bucket name (required)")
	_ = indexCancelCmd.MarkFlagRequired("target")
	_ = indexCancelCmd.MarkFlagRequired("bucket")

	indexDeleteCmd.Flags().String("target", "", "target id (required)")
	indexDeleteCmd.Flags().String("bucket", "", "bucket name (required)")
	_ = indexDeleteCmd.MarkFlagRequired("target")
	_ = indexDeleteCmd.MarkFlagRequired("bucket")

	indexStatusCmd.Flags().String("target", "", "target id (required)")
	indexStatusCmd.Flags().String("bucket", "", "bucket name (required)")
	_ = indexStatusCmd.MarkFlagRequired("target")
	_ = indexStatusCmd.MarkFlagRequired("bucket")

	indexCmd.AddCommand(indexStartCmd, indexCancelCmd, indexDeleteCmd, indexStatusCmd)
}

func runIndexStart(cmd *cobra.Command, args []string) error {
	targetID, _ := cmd.Flags().GetString("target")
	bucket, _ := cmd.Flags().GetString("bucket")
	fresh, _ := cmd.Flags().GetBool("fresh")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := signalbus.NewIndexBus()
	engine := indexEngine(store, bus)
	engine.Start(context.Background(), targetID, bucket, fresh)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- waitForIndexTerminal(store, targetID, bucket) }()

	for {
		select {
		case err := <-done:
			return err
		case <-sigs:
			engine.Cancel(targetID, bucket)
			fmt.Fprintln(os.Stderr, "cancelling index run")
		}
	}
}

func runIndexCancel(cmd *cobra.Command, args []string) error {
	targetID, _ := cmd.Flags().GetString("target")
	bucket, _ := cmd.Flags().GetString("bucket")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := indexEngine(store, signalbus.NewIndexBus())
	if !engine.Cancel(targetID, bucket) {
		fmt.Printf("no index currently running for %s/%s\n", targetID, bucket)
		return nil
	}
	fmt.Printf("index cancelled: %s/%s\n", targetID, bucket)
	return nil
}

func runIndexDelete(cmd *cobra.Command, args []string) error {
	targetID, _ := cmd.Flags().GetString("target")
	bucket, _ := cmd.Flags().GetString("bucket")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := indexEngine(store, signalbus.NewIndexBus())
	if err := engine.Delete(targetID, bucket); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	fmt.Printf("index deleted: %s/%s\n", targetID, bucket)
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	targetID, _ := cmd.Flags().GetString("target")
	bucket, _ := cmd.Flags().GetString("bucket")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.GetIndexState(targetID, bucket)
	if err != nil {
		return fmt.Errorf("get index state: %w", err)
	}
	printIndexState(st)
	return nil
}

func waitForIndexTerminal(store *catalog.Store, targetID, bucket string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		st, err := store.GetIndexState(targetID, bucket)
		if err != nil {
			return fmt.Errorf("get index state: %w", err)
		}
		switch st.Status {
		case catalog.IndexStatusIdle, catalog.IndexStatusError:
			printIndexState(st)
			return nil
		default:
			fmt.Printf("\rindexing: %d objects, %d bytes so far", st.IndexedObjects, st.TotalSize)
		}
	}
	return nil
}

func printIndexState(st catalog.IndexState) {
	fmt.Printf("\n%s/%s: %s, %d objects, %d bytes\n", st.TargetID, st.Bucket, st.Status, st.TotalObjects, st.TotalSize)
}
