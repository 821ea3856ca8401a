package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and the ticket pipeline.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	transitions  map[string]int64
	verdicts     map[string]int64
	stageLatency map[string]time.Duration
	stageCalls   map[string]int64
	alerts       int64
	inFlight     int64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests        map[string]int64   `json:"requests"`
	Errors          map[string]int64   `json:"errors"`
	Transitions     map[string]int64   `json:"transitions"`
	Verdicts        map[string]int64   `json:"verdicts"`
	StageAvgMillis  map[string]float64 `json:"stage_avg_ms"`
	Alerts          int64              `json:"alerts"`
	InFlightTickets int64              `json:"in_flight_tickets"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		transitions:  make(map[string]int64),
		verdicts:     make(map[string]int64),
		stageLatency: make(map[string]time.Duration),
		stageCalls:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts ticket state changes by target state.
func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[to]++
}

// RecordVerdict counts critic verdicts by verdict and reason.
func (m *Metrics) RecordVerdict(verdict, reason string) {
	if m == nil {
		return
	}
	key := verdict
	if reason != "" {
		key += "|" + reason
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[key]++
}

// RecordStage accumulates the latency of one pipeline stage call.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageLatency[stage] += d
	m.stageCalls[stage]++
}

// RecordAlert counts raised ghost ticket alerts.
func (m *Metrics) RecordAlert() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts++
}

// TicketStarted and TicketFinished track pipelines in flight.
func (m *Metrics) TicketStarted() { m.addInFlight(1) }

func (m *Metrics) TicketFinished() { m.addInFlight(-1) }

func (m *Metrics) addInFlight(delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight += delta
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Requests:       map[string]int64{},
		Errors:         map[string]int64{},
		Transitions:    map[string]int64{},
		Verdicts:       map[string]int64{},
		StageAvgMillis: map[string]float64{},
	}
	if m == nil {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copyCounts(s.Requests, m.requestCount)
	copyCounts(s.Errors, m.errorCount)
	copyCounts(s.Transitions, m.transitions)
	copyCounts(s.Verdicts, m.verdicts)
	for stage, total := range m.stageLatency {
		if n := m.stageCalls[stage]; n > 0 {
			s.StageAvgMillis[stage] = float64(total.Milliseconds()) / float64(n)
		}
	}
	s.Alerts = m.alerts
	s.InFlightTickets = m.inFlight
	return s
}

// TopErrors returns error keys ordered by count, largest first.
func (s Snapshot) TopErrors(n int) []string {
	keys := make([]string, 0, len(s.Errors))
	for k := range s.Errors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if s.Errors[keys[i]] != s.Errors[keys[j]] {
			return s.Errors[keys[i]] > s.Errors[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func copyCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
