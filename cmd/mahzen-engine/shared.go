package main

import (
	"context"
	"fmt"

	"github.com/mahzen/engine/catalog"
	"github.com/mahzen/engine/cloneengine"
	"github.com/mahzen/engine/config"
	"github.com/mahzen/engine/indexengine"
	"github.com/mahzen/engine/s3gateway"
	"github.com/mahzen/engine/signalbus"
	"github.com/spf13/cobra"
)

// loadConfig reads the persistent flags every subcommand shares and
// validates them before any store or engine is constructed.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	tempDir, _ := cmd.Flags().GetString("temp-dir")

	cfg := config.Config{DBPath: dbPath, LogLevel: logLevel, LogJSON: logJSON, TempDir: tempDir}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the catalog database named by --db and runs crash
// recovery once before returning it, so no subcommand ever observes a job
// or index left mid-run by a prior process that died.
func openStore(cmd *cobra.Command) (*catalog.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := catalog.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := store.RecoverFromCrash(); err != nil {
		store.Close()
		return nil, fmt.Errorf("recover from crash: %w", err)
	}
	return store, nil
}

// gatewayFor resolves a target id to a live Gateway bound to its stored
// endpoint and credentials.
func gatewayFor(ctx context.Context, store *catalog.Store, targetID string) (*s3gateway.Gateway, error) {
	target, err := store.FindTargetByID(targetID)
	if err != nil {
		return nil, fmt.Errorf("find target %s: %w", targetID, err)
	}
	creds, err := store.GetCredentials(targetID)
	if err != nil {
		return nil, fmt.Errorf("get credentials for target %s: %w", targetID, err)
	}

	gw, err := s3gateway.New(ctx, s3gateway.Target{
		Provider:       target.Provider,
		Endpoint:       target.Endpoint,
		Region:         target.Region,
		ForcePathStyle: target.ForcePathStyle,
	}, s3gateway.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	})
	if err != nil {
		return nil, fmt.Errorf("build gateway for target %s: %w", targetID, err)
	}
	return gw, nil
}

// cloneEngine wires a cloneengine.Engine over store, resolving each job's
// gateways lazily by target id. Each CLI invocation gets its own CloneBus:
// a control verb either finds a live goroutine from earlier in the same
// process (the foreground clone start/resume commands) or takes
// cloneengine.Engine's own path for a signal with no listener: Cancel
// stamps the cancelled status directly, Resume and RetryFailed spawn a
// fresh goroutine, and Pause does nothing and returns false.
func cloneEngine(store *catalog.Store, bus *signalbus.CloneBus, tempDir string) *cloneengine.Engine {
	return &cloneengine.Engine{
		Store: store,
		Gateways: func(targetID string) (cloneengine.Gateway, error) {
			return gatewayFor(context.Background(), store, targetID)
		},
		Signals: bus,
		TempDir: tempDir,
	}
}

// indexEngine wires an indexengine.Engine over store the same way.
func indexEngine(store *catalog.Store, bus *signalbus.IndexBus) *indexengine.Engine {
	return &indexengine.Engine{
		Store: store,
		Gateways: func(targetID string) (indexengine.Gateway, error) {
			return gatewayFor(context.Background(), store, targetID)
		},
		Signals: bus,
	}
}
