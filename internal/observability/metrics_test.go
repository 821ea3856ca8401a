package observability

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSnapshotCopiesCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/v1/tickets", "POST", 202, time.Millisecond)
	m.RecordError("/v1/tickets", "GET", "NOT_FOUND")
	m.RecordError("/v1/feedback", "POST", "VALIDATION_ERROR")
	m.RecordError("/v1/feedback", "POST", "VALIDATION_ERROR")
	m.RecordTransition("accepted")
	m.RecordVerdict("reject", "low-confidence")
	m.RecordVerdict("accept", "")
	m.RecordStage("resolve", 10*time.Millisecond)
	m.RecordStage("resolve", 30*time.Millisecond)
	m.RecordAlert()
	m.TicketStarted()
	m.TicketStarted()
	m.TicketFinished()

	s := m.Snapshot()
	if diff := cmp.Diff(map[string]int64{"reject|low-confidence": 1, "accept": 1}, s.Verdicts); diff != "" {
		t.Fatalf("verdicts mismatch (-want +got):\n%s", diff)
	}
	if s.StageAvgMillis["resolve"] != 20 {
		t.Fatalf("avg = %v", s.StageAvgMillis["resolve"])
	}
	if s.Alerts != 1 || s.InFlightTickets != 1 || s.Transitions["accepted"] != 1 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if got := s.TopErrors(1); len(got) != 1 || got[0] != "/v1/feedback|POST|VALIDATION_ERROR" {
		t.Fatalf("top errors = %v", got)
	}

	m.RecordAlert()
	if s.Alerts != 1 {
		t.Fatal("snapshot must not alias live counters")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransition("accepted")
	m.TicketStarted()
	if s := m.Snapshot(); s.Alerts != 0 {
		t.Fatal("expected empty snapshot")
	}
}
