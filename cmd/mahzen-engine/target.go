package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/ids"
	"github.com/spf13/cobra"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage S3-compatible target connections",
}

var targetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a target and its credentials",
	RunE:  runTargetAdd,
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered targets",
	RunE:  runTargetList,
}

var targetRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a target and its clone jobs and index state",
	RunE:  runTargetRemove,
}

var targetListBucketsCmd = &cobra.Command{
	Use:   "list-buckets",
	Short: "List every bucket visible to a target's credentials",
	RunE:  runTargetListBuckets,
}

var targetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Total a bucket's live object count and size",
	RunE:  runTargetStats,
}

func init() {
	targetAddCmd.Flags().String("name", "", "human-readable target name (required)")
	targetAddCmd.Flags().String("provider", "", "provider label, e.g. AWS, Cloudflare R2, MinIO (required)")
	targetAddCmd.Flags().String("endpoint", "", "S3-compatible endpoint URL; empty for AWS S3 itself")
	targetAddCmd.Flags().String("region", "", "region override; falls back to a provider default when empty")
	targetAddCmd.Flags().Bool("path-style", true, "use path-style addressing instead of virtual-hosted")
	targetAddCmd.Flags().String("access-key", "", "access key id (required)")
	targetAddCmd.Flags().String("secret-key", "", "secret access key (required)")
	targetAddCmd.Flags().String("session-token", "", "temporary session token, if the credentials require one")
	_ = targetAddCmd.MarkFlagRequired("name")
	_ = targetAddCmd.MarkFlagRequired("provider")
	_ = targetAddCmd.MarkFlagRequired("access-key")
	_ = targetAddCmd.MarkFlagRequired("secret-key")

	targetRemoveCmd.Flags().String("id", "", "target id to remove (required)")
	_ = targetRemoveCmd.MarkFlagRequired("id")

	targetListBucketsCmd.Flags().String("id", "", "target id (required)")
	_ = targetListBucketsCmd.MarkFlagRequired("id")

	targetStatsCmd.Flags().String("id", "", "target id (required)")
	targetStatsCmd.Flags().String("bucket", "", "bucket name (required)")
	_ = targetStatsCmd.MarkFlagRequired("id")
	_ = targetStatsCmd.MarkFlagRequired("bucket")

	targetCmd.AddCommand(targetAddCmd, targetListCmd, targetRemoveCmd, targetListBucketsCmd, targetStatsCmd)
}

func runTargetListBuckets(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	id, _ := cmd.Flags().GetString("id")
	gw, err := gatewayFor(context.Background(), store, id)
	if err != nil {
		return err
	}

	buckets, err := gw.ListBuckets(context.Background())
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, b := range buckets {
		fmt.Printf("%s\t%d\n", b.Name, b.CreatedAt)
	}
	return nil
}

func runTargetStats(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	id, _ := cmd.Flags().GetString("id")
	bucket, _ := cmd.Flags().GetString("bucket")
	gw, err := gatewayFor(context.Background(), store, id)
	if err != nil {
		return err
	}

	stats, err := gw.Stats(context.Background(), bucket)
	if err != nil {
		return fmt.Errorf("bucket stats: %w", err)
	}
	fmt.Printf("%s: %d objects, %d bytes\n", bucket, stats.ObjectCount, stats.TotalSize)
	return nil
}

func runTargetAdd(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	name, _ := cmd.Flags().GetString("name")
	provider, _ := cmd.Flags().GetString("provider")
	endpoint, _ := cmd.Flags().GetString("endpoint")
	region, _ := cmd.Flags().GetString("region")
	pathStyle, _ := cmd.Flags().GetBool("path-style")
	accessKey, _ := cmd.Flags().GetString("access-key")
	secretKey, _ := cmd.Flags().GetString("secret-key")
	sessionToken, _ := cmd.Flags().GetString("session-token")

	id := ids.New()
	now := time.Now().Unix()
	if err := store.UpsertTarget(catalog.Target{
		ID: id, Name: name, Provider: provider, Endpoint: endpoint,
		Region: region, ForcePathStyle: pathStyle, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("save target: %w", err)
	}
	if err := store.UpsertCredentials(catalog.Credentials{
		TargetID: id, AccessKeyID: accessKey, SecretAccessKey: secretKey, SessionToken: sessionToken,
	}); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	fmt.Printf("target added: %s (%s)\n", id, name)
	return nil
}

func runTargetList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	targets, err := store.ListTargets()
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	if len(targets) == 0 {
		fmt.Println("no targets registered")
		return nil
	}
	for _, t := range targets {
		fmt.Printf("%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Provider, t.Endpoint)
	}
	return nil
}

func runTargetRemove(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	id, _ := cmd.Flags().GetString("id")
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("target id is required")
	}
	if err := store.DeleteTarget(id); err != nil {
		return fmt.Errorf("remove target: %w", err)
	}
	fmt.Printf("target removed: %s\n", id)
	return nil
}
