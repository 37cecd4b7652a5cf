package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/gofr-dig/internal/housekeep"
)

// housekeeperCmd runs the periodic storage-size prune loop standalone,
// for a sidecar deployment separate from the API process. Grounded on
// app/housekeeper.py's main().
var housekeeperCmd = &cobra.Command{
	Use:   "housekeeper",
	Short: "Run the periodic storage-size prune loop",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd.Flags())
		store := buildSessionStore(cfg)

		idx, err := housekeep.OpenIndex(filepath.Join(cfg.Storage, "index.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: failed to open housekeeper index: %v\n", err)
			os.Exit(1)
		}

		hk := &housekeep.Housekeeper{
			Store:          store,
			Index:          idx,
			StorageDir:     cfg.Storage,
			MaxBytes:       int64(cfg.MaxStorageMB) * 1024 * 1024,
			Interval:       time.Duration(cfg.HousekeepingIntervalMins) * time.Minute,
			LockStaleAfter: time.Duration(cfg.HousekeeperLockStaleSecs) * time.Second,
		}
		hk.Run(context.Background())
	},
}
