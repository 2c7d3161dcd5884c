package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/dcf77-receiver/internal/dcf77"
	"github.com/sweeney/dcf77-receiver/internal/logic"
)

func TestRecordBits(t *testing.T) {
	m := New()
	m.RecordEvent(logic.Event{Type: logic.EventBit, Value: true})
	m.RecordEvent(logic.Event{Type: logic.EventBit, Value: true})
	m.RecordEvent(logic.Event{Type: logic.EventBit, Value: false})
	m.RecordEvent(logic.Event{Type: logic.EventFaultyBit})

	if got := testutil.ToFloat64(m.bitsTotal.WithLabelValues("1")); got != 2 {
		t.Errorf("bits_total{value=1}: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bitsTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("bits_total{value=0}: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.faultyBitsTotal); got != 1 {
		t.Errorf("faulty_bits_total: got %v, want 1", got)
	}
}

func TestRecordMinutes(t *testing.T) {
	m := New()
	decoded := dcf77.Time{Date: dcf77.Date{Year: 2026, Month: 10, Day: 19}, Hour: 14, Minute: 2, CEST: true}
	// Gap detected 190ms before the minute starts.
	at := time.Date(2026, 10, 19, 12, 1, 59, 810_000_000, time.UTC)

	m.RecordEvent(logic.Event{Type: logic.EventMinute, Timestamp: at, Time: decoded})
	m.RecordEvent(logic.Event{Type: logic.EventMinute, Err: dcf77.ErrParity})
	m.RecordEvent(logic.Event{Type: logic.EventMinute, Err: logic.ErrBitCount})
	m.RecordEvent(logic.Event{Type: logic.EventMinute, Err: logic.ErrBitCount})

	for result, want := range map[string]float64{ResultValid: 1, ResultInvalid: 1, ResultIncomplete: 2} {
		if got := testutil.ToFloat64(m.minutesTotal.WithLabelValues(result)); got != want {
			t.Errorf("minutes_total{result=%s}: got %v, want %v", result, got, want)
		}
	}
	if got := testutil.ToFloat64(m.lastValid); got != float64(at.Unix()) {
		t.Errorf("last_valid_timestamp_seconds: got %v, want %v", got, at.Unix())
	}
	if got := testutil.ToFloat64(m.clockOffset); got < 0.189 || got > 0.191 {
		t.Errorf("clock_offset_seconds: got %v, want 0.19", got)
	}
}

func TestSetState(t *testing.T) {
	m := New()
	m.SetState(42, true)
	if got := testutil.ToFloat64(m.second); got != 42 {
		t.Errorf("second: got %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.synced); got != 1 {
		t.Errorf("synced: got %v, want 1", got)
	}
	m.SetState(0, false)
	if got := testutil.ToFloat64(m.synced); got != 0 {
		t.Errorf("synced: got %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordEvent(logic.Event{Type: logic.EventFaultyBit})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "dcf77_faulty_bits_total 1") {
		t.Errorf("missing faulty bits counter in:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE dcf77_synced gauge") {
		t.Errorf("missing synced gauge in:\n%s", body)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordEvent(logic.Event{Type: logic.EventFaultyBit})
	if got := testutil.ToFloat64(b.faultyBitsTotal); got != 0 {
		t.Errorf("registries should be independent, got %v", got)
	}
	if a.Registry() == b.Registry() {
		t.Error("expected distinct registries")
	}
}
