package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/dcf77-receiver/internal/dcf77"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader([]bool{true, false, true})

	for i, want := range []bool{true, false, true, true} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]bool{true})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Error("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader([]bool{true})

	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeReaderReset(t *testing.T) {
	f := NewFakeReader([]bool{true, false})

	// Consume first sample
	f.Read()

	f.Reset()

	// Should read first sample again
	got, _ := f.Read()
	if got != true {
		t.Errorf("after reset: expected true, got %v", got)
	}
}

func TestSignalReaderDecodes(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 30, 0, time.UTC)
	s := NewSignalReader(start)

	d := dcf77.NewDecoder()
	var minutes []dcf77.Time
	synced := false
	// 30s to the first gap, then two full minutes.
	for i := 0; i < 3000+2*dcf77.SamplesPerMinute; i++ {
		v, err := s.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		d.Ingest(v)
		if !d.EndOfCycle() {
			continue
		}
		if !synced {
			synced = true
			continue
		}
		tm, err := d.Telegram().Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		minutes = append(minutes, tm)
	}

	if len(minutes) != 2 {
		t.Fatalf("expected 2 minutes, got %d", len(minutes))
	}
	// 12:02 UTC and 12:03 UTC in CEST.
	for i, tm := range minutes {
		if !tm.CEST || tm.Hour != 14 || int(tm.Minute) != 2+i {
			t.Errorf("minute %d: got %v", i, tm)
		}
	}
}

func TestSignalReaderStartsMidMinute(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 59, 0, time.UTC)
	s := NewSignalReader(start)

	// Second 59 carries no pulse.
	for i := 0; i < 100; i++ {
		if v, _ := s.Read(); v {
			t.Fatalf("sample %d of second 59 is high", i)
		}
	}
	// Second 0 of the next minute starts with a pulse.
	if v, _ := s.Read(); !v {
		t.Error("expected leading edge at second 0")
	}
}

func TestSignalReaderClose(t *testing.T) {
	s := NewSignalReader(time.Now())
	if err := s.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !s.Closed {
		t.Error("should be closed after Close()")
	}
}
