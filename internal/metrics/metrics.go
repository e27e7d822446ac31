package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex              sync.RWMutex
	requests           map[string]int64
	responseTimes      map[string][]time.Duration
	statusCodes        map[string]map[int]int64
	transportErrors    map[string]map[string]int64
	healthStatus       map[string]bool
	resolutionFailures int64
	startTime          time.Time
}

type Snapshot struct {
	TotalRequests      int64                    `json:"total_requests"`
	ResolutionFailures int64                    `json:"resolution_failures"`
	Uptime             time.Duration            `json:"uptime"`
	Targets            map[string]TargetMetrics `json:"targets"`
}

type TargetMetrics struct {
	Requests        int64            `json:"requests"`
	Healthy         *bool            `json:"healthy,omitempty"`
	AvgResponse     time.Duration    `json:"avg_response"`
	P50Response     time.Duration    `json:"p50_response"`
	P95Response     time.Duration    `json:"p95_response"`
	P99Response     time.Duration    `json:"p99_response"`
	StatusCodes     map[int]int64    `json:"status_codes"`
	TransportErrors map[string]int64 `json:"transport_errors,omitempty"`
}

func (m *Metrics) IncrementRequests(target string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[target]++
}

func (m *Metrics) IncrementResolutionFailures() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.resolutionFailures++
}

func (m *Metrics) RecordResponse(target string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[target] = append(m.responseTimes[target], duration)

	if len(m.responseTimes[target]) > maxSamples {
		m.responseTimes[target] = m.responseTimes[target][1:]
	}

	if m.statusCodes[target] == nil {
		m.statusCodes[target] = make(map[int]int64)
	}
	m.statusCodes[target][statusCode]++
}

func (m *Metrics) RecordTransportError(target, kind string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.transportErrors[target] == nil {
		m.transportErrors[target] = make(map[string]int64)
	}
	m.transportErrors[target][kind]++
}

func (m *Metrics) UpdateHealthStatus(target string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[target] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		ResolutionFailures: m.resolutionFailures,
		Uptime:             time.Since(m.startTime),
		Targets:            make(map[string]TargetMetrics),
	}

	allTargets := make(map[string]bool)
	for target := range m.requests {
		allTargets[target] = true
	}
	for target := range m.responseTimes {
		allTargets[target] = true
	}
	for target := range m.transportErrors {
		allTargets[target] = true
	}
	for target := range m.healthStatus {
		allTargets[target] = true
	}

	for target := range allTargets {
		snap.TotalRequests += m.requests[target]

		tm := TargetMetrics{
			Requests:        m.requests[target],
			StatusCodes:     copyCounts(m.statusCodes[target]),
			TransportErrors: copyCounts(m.transportErrors[target]),
		}
		if healthy, ok := m.healthStatus[target]; ok {
			tm.Healthy = &healthy
		}

		durations := m.responseTimes[target]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			tm.AvgResponse = average(sorted)
			tm.P50Response = percentile(sorted, 0.50)
			tm.P95Response = percentile(sorted, 0.95)
			tm.P99Response = percentile(sorted, 0.99)
		}

		snap.Targets[target] = tm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:        make(map[string]int64),
		responseTimes:   make(map[string][]time.Duration),
		statusCodes:     make(map[string]map[int]int64),
		transportErrors: make(map[string]map[string]int64),
		healthStatus:    make(map[string]bool),
		startTime:       time.Now(),
	}
}

func copyCounts[K comparable](src map[K]int64) map[K]int64 {
	if src == nil {
		return nil
	}
	dst := make(map[K]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
