package simulator

// BuildReport flattens a run's config, result, and metrics into one
// JSON-able map for the `simulate` CLI output and any future API
// surface. Grounded on simulator/api/report.py's build_simulation_report.
func BuildReport(config Config, result Result) map[string]any {
	configPayload := map[string]any{
		"mode":                      config.Mode,
		"consumers":                 config.Consumers,
		"rate_per_consumer_per_sec": config.RatePerConsumerPerSec,
		"total_requests":            config.TotalRequests,
		"duration_seconds":          config.DurationSeconds,
		"mcp_url":                   config.MCPURL,
		"sites_file":                config.SitesFile,
		"target_url":                config.TargetURL,
		"timeout_seconds":           config.TimeoutSeconds,
	}

	return map[string]any{
		"config": configPayload,
		"result": map[string]any{
			"request_count":    result.RequestCount,
			"error_count":      result.ErrorCount,
			"duration_seconds": result.Duration().Seconds(),
			"throughput_rps":   result.ThroughputRPS(),
		},
		"metrics": result.MetricsReport,
	}
}
