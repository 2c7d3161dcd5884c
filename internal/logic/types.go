// Package logic turns per-tick DCF77 decoder state into discrete events.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"time"

	"github.com/sweeney/dcf77-receiver/internal/dcf77"
)

// ErrBitCount is reported for a minute that did not contain exactly 59 bits.
var ErrBitCount = errors.New("wrong number of bits in minute")

// EventType identifies what a tick produced.
type EventType string

const (
	EventBit       EventType = "BIT"
	EventFaultyBit EventType = "FAULTY_BIT"
	EventMinute    EventType = "MINUTE"
)

// Event is a single decoding result.
type Event struct {
	Timestamp time.Time
	Type      EventType

	// BIT and FAULTY_BIT: index of the bit within the minute.
	Second int
	// BIT: decoded value.
	Value bool

	// MINUTE fields.
	Telegram dcf77.Telegram
	Bits     int
	Time     dcf77.Time
	Err      error
}

// Valid reports whether a MINUTE event carries a decoded time.
func (e Event) Valid() bool {
	return e.Type == EventMinute && e.Err == nil
}

// Input represents a single sample of the receiver output.
type Input struct {
	High bool // true = pulse (carrier reduced)
	Time time.Time
}

// EventCounts tracks decoding results since startup.
type EventCounts struct {
	Bits           int
	FaultyBits     int
	Minutes        int
	ValidMinutes   int
	InvalidMinutes int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
	Synced    bool
}
