// Package status provides a thread-safe view of the receiver for HTTP handlers
// and MQTT lifecycle payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dcf77-receiver/internal/dcf77"
	"github.com/sweeney/dcf77-receiver/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip        string
	Pin         int
	Invert      bool
	Simulate    bool
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// LastBit is the most recently committed bit.
type LastBit struct {
	Second int
	Value  bool
	Faulty bool
	Time   time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State         dcf77.State
	Second        int
	Synced        bool
	LastBit       *LastBit
	LastMinute    *logic.Event
	LastValid     time.Time
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     dcf77.WaitingForPhase,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the decoder position and counters.
// Called from runLoop on every tick.
func (t *Tracker) Update(state dcf77.State, second int, synced bool, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Second = second
	t.snap.Synced = synced
	t.snap.Counts = counts
	t.mu.Unlock()
}

// Observe records the outcome of a receiver event.
func (t *Tracker) Observe(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Type {
	case logic.EventBit, logic.EventFaultyBit:
		t.snap.LastBit = &LastBit{
			Second: e.Second,
			Value:  e.Value,
			Faulty: e.Type == logic.EventFaultyBit,
			Time:   e.Timestamp,
		}
	case logic.EventMinute:
		t.snap.LastMinute = &e
		if e.Valid() {
			t.snap.LastValid = e.Timestamp
		}
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastBit != nil {
		b := *s.LastBit
		s.LastBit = &b
	}
	if s.LastMinute != nil {
		m := *s.LastMinute
		s.LastMinute = &m
	}
	s.Now = time.Now()
	return s
}
