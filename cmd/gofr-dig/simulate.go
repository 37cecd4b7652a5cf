package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/gofr-dig/internal/config"
	"github.com/FranksOps/gofr-dig/internal/metrics"
	"github.com/FranksOps/gofr-dig/internal/session"
	"github.com/FranksOps/gofr-dig/internal/simulator"
	"github.com/FranksOps/gofr-dig/internal/storage"
	"github.com/FranksOps/gofr-dig/internal/storage/sqlite"
)

// simulateCmd groups the load-generation and fixture-recording
// scenarios, ground truth simulator/run.py.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a load, auth-groups, or fixture-recording scenario",
}

var (
	simConsumers    int
	simRatePerSec   float64
	simDurationSecs float64
	simMode         string
	simMCPURL       string
	simSitesFile    string
	simFixturesDir  string
	simMixFile      string
	simRecordURLs   []string
	simReportDSN    string
)

func init() {
	simulateCmd.AddCommand(simulateLoadCmd)
	simulateCmd.AddCommand(simulateAuthGroupsCmd)
	simulateCmd.AddCommand(simulateRecordCmd)

	simulateLoadCmd.Flags().IntVar(&simConsumers, "consumers", 0, "number of concurrent consumers (0 = scenario default)")
	simulateLoadCmd.Flags().Float64Var(&simRatePerSec, "rate", 0, "requests per second per consumer (0 = scenario default)")
	simulateLoadCmd.Flags().Float64Var(&simDurationSecs, "duration-seconds", 0, "run duration in seconds (0 = scenario default)")
	simulateLoadCmd.Flags().StringVar(&simMode, "mode", "", "fixture, live, or record (empty = scenario default)")
	simulateLoadCmd.Flags().StringVar(&simMCPURL, "mcp-url", "", "MCP tool-call listener URL for live/record modes")
	simulateLoadCmd.Flags().StringVar(&simSitesFile, "sites-file", "", "JSON file of candidate live sites")
	simulateLoadCmd.Flags().StringVar(&simFixturesDir, "fixtures-dir", "simulator/fixtures/data", "recorded fixture directory for fixture mode")
	simulateLoadCmd.Flags().StringVar(&simMixFile, "mix-file", "", "persona mix JSON file (empty = single uniform persona)")
	simulateLoadCmd.Flags().StringVar(&simReportDSN, "report-db", "", "sqlite DSN to persist the run report into (empty = stdout only)")

	simulateRecordCmd.Flags().StringArrayVar(&simRecordURLs, "url", nil, "URL to record (repeatable)")
	simulateRecordCmd.Flags().StringVar(&simFixturesDir, "fixtures-dir", "simulator/fixtures/data", "directory to write recorded fixtures into")
}

var simulateLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run the high-concurrency load scenario",
	Run: func(cmd *cobra.Command, args []string) {
		opts := simulator.LoadScenarioOptions{
			Consumers:   simConsumers,
			MixFile:     simMixFile,
			FixturesDir: simFixturesDir,
			SitesFile:   simSitesFile,
		}
		if simRatePerSec > 0 {
			opts.RatePerConsumer = simRatePerSec
		}
		if simDurationSecs > 0 {
			opts.DurationSeconds = &simDurationSecs
		}
		if simMode != "" {
			opts.Mode = simulator.Mode(simMode)
		}
		if simMCPURL != "" {
			opts.MCPURL = &simMCPURL
		}

		started := time.Now()
		result, err := simulator.RunLoadScenario(context.Background(), opts)
		runErr := ""
		if err != nil {
			runErr = err.Error()
		}

		runConfig := simulator.BuildLoadConfig(opts)
		report := simulator.BuildReport(runConfig, result)
		metrics.RecordSimulatorRun(string(runConfig.Mode))
		emitReport(report)

		if simReportDSN != "" {
			persistRunReport(string(runConfig.Mode), started, result, report, runErr)
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: load scenario failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var simulateAuthGroupsCmd = &cobra.Command{
	Use:   "auth-groups",
	Short: "Run the per-group session isolation scenario",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd.Flags())
		store := buildSessionStoreForSimulation(cfg)

		result, err := simulator.RunAuthGroupsScenario(context.Background(), store)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: auth-groups scenario failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	},
}

var simulateRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Fetch, obfuscate, and save HTML fixtures for the listed URLs",
	Run: func(cmd *cobra.Command, args []string) {
		if len(simRecordURLs) == 0 {
			fmt.Fprintln(os.Stderr, "gofr-dig: at least one --url is required")
			os.Exit(1)
		}

		store := simulator.NewFixtureStore(simFixturesDir)
		recorder := simulator.NewRecorder(store, 30*time.Second)

		result, err := recorder.RecordURLs(context.Background(), simRecordURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gofr-dig: record failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	},
}

func buildSessionStoreForSimulation(cfg config.Config) *session.Store {
	return buildSessionStore(cfg)
}

func emitReport(report map[string]any) {
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}

func persistRunReport(mode string, started time.Time, result simulator.Result, report map[string]any, runErr string) {
	backend, err := sqlite.New(simReportDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gofr-dig: failed to open report backend: %v\n", err)
		return
	}
	defer backend.Close()

	reportJSON, err := json.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gofr-dig: failed to marshal report: %v\n", err)
		return
	}

	record := &storage.RunRecord{
		ID:           fmt.Sprintf("%s-%d", mode, started.UnixNano()),
		Mode:         mode,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Duration:     result.Duration(),
		RequestCount: result.RequestCount,
		ErrorCount:   result.ErrorCount,
		ReportJSON:   reportJSON,
		Error:        runErr,
	}
	if err := backend.Save(context.Background(), record); err != nil {
		fmt.Fprintf(os.Stderr, "gofr-dig: failed to save run report: %v\n", err)
	}
}
