package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// percentile computes the p-th percentile of sorted (ascending)
// millisecond values by linear interpolation.
func percentile(sortedValues []int, p float64) (float64, bool) {
	if len(sortedValues) == 0 {
		return 0, false
	}
	if p <= 0 {
		return float64(sortedValues[0]), true
	}
	if p >= 1 {
		return float64(sortedValues[len(sortedValues)-1]), true
	}

	k := float64(len(sortedValues)-1) * p
	f := int(math.Floor(k))
	c := int(math.Ceil(k))
	if f == c {
		return float64(sortedValues[f]), true
	}
	d0 := float64(sortedValues[f]) * (float64(c) - k)
	d1 := float64(sortedValues[c]) * (k - float64(f))
	return d0 + d1, true
}

// reservoirSampler holds a fixed-size uniform sample of observed
// latencies, bounding memory regardless of run length.
type reservoirSampler struct {
	maxSize int
	rng     *rand.Rand
	seen    int
	values  []int
}

func newReservoirSampler(maxSize int) *reservoirSampler {
	return &reservoirSampler{maxSize: maxSize, rng: rand.New(rand.NewSource(int64(maxSize)))}
}

func (r *reservoirSampler) add(value int) {
	r.seen++
	if len(r.values) < r.maxSize {
		r.values = append(r.values, value)
		return
	}
	idx := r.rng.Intn(r.seen)
	if idx < r.maxSize {
		r.values[idx] = value
	}
}

func (r *reservoirSampler) sortedValues() []int {
	out := make([]int, len(r.values))
	copy(out, r.values)
	sort.Ints(out)
	return out
}

// latencyAgg accumulates count/error/min/max/sum statistics alongside
// a reservoir sample, one per (overall | tool | tool+persona) key.
type latencyAgg struct {
	count      int
	errorCount int
	sumMs      int64
	minMs      *int
	maxMs      *int
	errorTypes map[string]int
	sample     *reservoirSampler
}

func newLatencyAgg(sampleSize int) *latencyAgg {
	return &latencyAgg{errorTypes: make(map[string]int), sample: newReservoirSampler(sampleSize)}
}

func (a *latencyAgg) observe(durationMs int, success bool, errorType string) {
	a.count++
	if !success {
		a.errorCount++
		if errorType == "" {
			errorType = "unknown"
		}
		a.errorTypes[errorType]++
	}
	a.sumMs += int64(durationMs)
	if a.minMs == nil || durationMs < *a.minMs {
		v := durationMs
		a.minMs = &v
	}
	if a.maxMs == nil || durationMs > *a.maxMs {
		v := durationMs
		a.maxMs = &v
	}
	a.sample.add(durationMs)
}

// report renders one aggregate to its wire-shaped map, matching the
// field set build_report/_agg_to_report emits exactly.
func (a *latencyAgg) report() map[string]any {
	values := a.sample.sortedValues()

	p50, hasP50 := percentile(values, 0.50)
	p95, hasP95 := percentile(values, 0.95)
	p99, hasP99 := percentile(values, 0.99)

	var mean any
	if a.count > 0 {
		mean = float64(a.sumMs) / float64(a.count)
	}
	errorRate := 0.0
	if a.count > 0 {
		errorRate = float64(a.errorCount) / float64(a.count) * 100
	}

	errorTypes := map[string]int{}
	for k, v := range a.errorTypes {
		errorTypes[k] = v
	}

	out := map[string]any{
		"count":          a.count,
		"error_count":    a.errorCount,
		"error_rate_pct": math.Round(errorRate*100) / 100,
		"error_types":    errorTypes,
		"min_ms":         intPtrToAny(a.minMs),
		"max_ms":         intPtrToAny(a.maxMs),
		"mean_ms":        mean,
		"sample_size":    len(values),
	}
	out["p50_ms"] = percentileToAny(p50, hasP50)
	out["p95_ms"] = percentileToAny(p95, hasP95)
	out["p99_ms"] = percentileToAny(p99, hasP99)
	return out
}

func intPtrToAny(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func percentileToAny(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

// MetricsCollector aggregates per-tool and per-tool-per-persona
// latency/error statistics for one simulation run. Direct translation
// of core/metrics.py's MetricsCollector, guarded by a mutex instead of
// an asyncio.Lock since consumers run as goroutines, not coroutines.
type MetricsCollector struct {
	mu         sync.Mutex
	sampleSize int

	overall       *latencyAgg
	byTool        map[string]*latencyAgg
	byToolPersona map[string]*latencyAgg
}

// NewMetricsCollector builds a collector with the given per-key
// reservoir bound (5000 matches the original's default).
func NewMetricsCollector(sampleSize int) *MetricsCollector {
	if sampleSize <= 0 {
		sampleSize = 5000
	}
	return &MetricsCollector{
		sampleSize:    sampleSize,
		overall:       newLatencyAgg(sampleSize),
		byTool:        make(map[string]*latencyAgg),
		byToolPersona: make(map[string]*latencyAgg),
	}
}

// Record observes one completed tool call/request.
func (m *MetricsCollector) Record(toolName string, durationMs int, success bool, persona, errorType string) {
	if durationMs < 0 {
		durationMs = 0
	}
	personaName := persona
	if personaName == "" {
		personaName = "default"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.overall.observe(durationMs, success, errorType)

	toolAgg, ok := m.byTool[toolName]
	if !ok {
		toolAgg = newLatencyAgg(m.sampleSize)
		m.byTool[toolName] = toolAgg
	}
	toolAgg.observe(durationMs, success, errorType)

	key := fmt.Sprintf("%s::%s", toolName, personaName)
	tpAgg, ok := m.byToolPersona[key]
	if !ok {
		tpAgg = newLatencyAgg(m.sampleSize)
		m.byToolPersona[key] = tpAgg
	}
	tpAgg.observe(durationMs, success, errorType)
}

// BuildReport renders the full overall/by_tool/by_tool_persona report.
func (m *MetricsCollector) BuildReport() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	tools := map[string]any{}
	for name, agg := range m.byTool {
		tools[name] = agg.report()
	}
	toolPersona := map[string]any{}
	for key, agg := range m.byToolPersona {
		toolPersona[key] = agg.report()
	}

	return map[string]any{
		"overall":         m.overall.report(),
		"by_tool":         tools,
		"by_tool_persona": toolPersona,
	}
}
