package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/gofr-dig/internal/housekeep"
	"github.com/FranksOps/gofr-dig/internal/storage"
	"github.com/FranksOps/gofr-dig/internal/storage/csvbackend"
	"github.com/FranksOps/gofr-dig/internal/storage/jsonbackend"
	"github.com/FranksOps/gofr-dig/internal/storage/postgres"
	"github.com/FranksOps/gofr-dig/internal/storage/sqlite"
)

// storageCmd groups the run-record storage management operations,
// ground truth app/management/storage_manager.py's argparse CLI.
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and manage the simulator run-record store",
}

var (
	storageBackendKind string
	storageDSN         string
	storageModeFilter  string
	storageLimit       int
)

func init() {
	storageCmd.PersistentFlags().StringVar(&storageBackendKind, "backend", "sqlite", "backend kind: sqlite, postgres, json, csv")
	storageCmd.PersistentFlags().StringVar(&storageDSN, "dsn", "./data/runs.db", "backend connection string or file path")
	storageCmd.AddCommand(storageListCmd)
	storageCmd.AddCommand(storageStatsCmd)
	storageCmd.AddCommand(storagePurgeCmd)
	storageCmd.AddCommand(storagePruneSizeCmd)

	storageListCmd.Flags().StringVar(&storageModeFilter, "mode", "", "filter by run mode (live, fixture, record)")
	storageListCmd.Flags().IntVar(&storageLimit, "limit", 20, "maximum rows to print")
}

func openBackend() storage.Backend {
	var (
		backend storage.Backend
		err     error
	)
	switch storageBackendKind {
	case "sqlite":
		backend, err = sqlite.New(storageDSN)
	case "postgres":
		backend, err = postgres.New(context.Background(), storageDSN)
	case "json":
		backend, err = jsonbackend.New(storageDSN)
	case "csv":
		backend, err = csvbackend.New(storageDSN)
	default:
		fmt.Fprintf(os.Stderr, "gofr-dig: unknown storage backend %q\n", storageBackendKind)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "gofr-dig: failed to open %s backend: %v\n", storageBackendKind, err)
		os.Exit(1)
	}
	return backend
}

var storageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent run records",
	Run: func(cmd *cobra.Command, args []string) {
		backend := openBackend()
		defer backend.Close()

		records, err := backend.Query(context.Background(), storage.Filter{Mode: storageModeFilter, Limit: storageLimit})
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: query failed: %v\n", err)
			os.Exit(1)
		}
		for _, r := range records {
			fmt.Printf("%s\t%s\t%s\trequests=%d\terrors=%d\tduration=%s\n",
				r.ID, r.Mode, r.StartedAt.Format(time.RFC3339), r.RequestCount, r.ErrorCount, r.Duration)
		}
	},
}

var storageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored run records",
	Run: func(cmd *cobra.Command, args []string) {
		backend := openBackend()
		defer backend.Close()

		records, err := backend.Query(context.Background(), storage.Filter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: query failed: %v\n", err)
			os.Exit(1)
		}

		byMode := map[string]int{}
		var totalRequests, totalErrors int
		for _, r := range records {
			byMode[r.Mode]++
			totalRequests += r.RequestCount
			totalErrors += r.ErrorCount
		}

		out, _ := json.MarshalIndent(map[string]any{
			"total_runs":      len(records),
			"runs_by_mode":    byMode,
			"total_requests":  totalRequests,
			"total_errors":    totalErrors,
		}, "", "  ")
		fmt.Println(string(out))
	},
}

var storagePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Report how many run records are newer than --older-than-days (deletes nothing)",
	Run: func(cmd *cobra.Command, args []string) {
		olderThanDays, _ := cmd.Flags().GetInt("older-than-days")
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)

		backend := openBackend()
		defer backend.Close()

		records, err := backend.Query(context.Background(), storage.Filter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: query failed: %v\n", err)
			os.Exit(1)
		}

		kept := 0
		for _, r := range records {
			if r.StartedAt.Before(cutoff) {
				continue
			}
			kept++
		}
		fmt.Printf("would keep %d of %d records newer than %s (purge is not supported by the Backend interface; none deleted)\n",
			kept, len(records), cutoff.Format(time.RFC3339))
	},
}

func init() {
	storagePurgeCmd.Flags().Int("older-than-days", 30, "count records started before this many days ago as purgeable")
}

var storagePruneSizeCmd = &cobra.Command{
	Use:   "prune-size",
	Short: "Delete the oldest sessions until storage is under the configured size cap",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd.Flags())
		store := buildSessionStore(cfg)

		idx, err := housekeep.OpenIndex(filepath.Join(cfg.Storage, "index.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: failed to open housekeeper index: %v\n", err)
			os.Exit(1)
		}

		maxBytes := int64(cfg.MaxStorageMB) * 1024 * 1024
		lockStale := time.Duration(cfg.HousekeeperLockStaleSecs) * time.Second
		result, err := housekeep.PruneSize(context.Background(), store, idx, cfg.Storage, maxBytes, "", lockStale)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: prune failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("pruned %d of %d sessions, freed %s, now %s (target %s)\n",
			result.DeletedCount, result.ItemCount,
			strconv.FormatInt(result.FreedBytes, 10)+"B",
			strconv.FormatInt(result.FinalBytes, 10)+"B",
			strconv.FormatInt(result.TargetBytes, 10)+"B")
	},
}
