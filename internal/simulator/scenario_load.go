package simulator

import "context"

// LoadScenarioOptions tunes the pre-built high-concurrency load
// scenario. Zero values pick the same defaults as the original's
// build_load_config: 50 consumers, 10 req/s each, fixture mode for
// CI-safe default runs, 60s duration.
type LoadScenarioOptions struct {
	Consumers       int
	RatePerConsumer float64
	DurationSeconds *float64
	TotalRequests   *int
	Mode            Mode
	MCPURL          *string
	SitesFile       string
	FixturesDir     string
	MixFile         string
	TimeoutSeconds  float64
}

// BuildLoadConfig renders a LoadScenarioOptions into a simulation Config.
func BuildLoadConfig(opts LoadScenarioOptions) Config {
	if opts.Consumers == 0 {
		opts.Consumers = 50
	}
	if opts.RatePerConsumer == 0 {
		opts.RatePerConsumer = 10.0
	}
	if opts.Mode == "" {
		opts.Mode = ModeFixture
	}
	if opts.SitesFile == "" {
		opts.SitesFile = "simulator/sites.json"
	}
	if opts.TimeoutSeconds == 0 {
		opts.TimeoutSeconds = 30.0
	}
	duration := opts.DurationSeconds
	if duration == nil && opts.TotalRequests == nil {
		d := 60.0
		duration = &d
	}

	return Config{
		Mode:                  opts.Mode,
		Consumers:             opts.Consumers,
		RatePerConsumerPerSec: opts.RatePerConsumer,
		TotalRequests:         opts.TotalRequests,
		DurationSeconds:       duration,
		MCPURL:                opts.MCPURL,
		SitesFile:             opts.SitesFile,
		TargetURL:             nil,
		TimeoutSeconds:        opts.TimeoutSeconds,
	}
}

// RunLoadScenario is the programmatic entry point for sustained,
// high-concurrency traffic used to surface stability issues, leaks, or
// 5xx regressions — the entry point CI and the `simulate load` command
// both call. Grounded on scenarios/load.py's run_load_scenario.
func RunLoadScenario(ctx context.Context, opts LoadScenarioOptions) (Result, error) {
	config := BuildLoadConfig(opts)
	sim := NewSimulator(config, opts.MixFile, opts.FixturesDir)
	return sim.Run(ctx)
}
