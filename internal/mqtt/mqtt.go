// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/dcf77-receiver/internal/logic"
)

// Topic is the MQTT topic for decoded minutes.
const Topic = "time/dcf77/minute"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "time/dcf77/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a decoded minute to the broker. Events other than MINUTE
	// are ignored.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	DCF77 MinutePayload `json:"dcf77"`
}

// MinutePayload contains the result of one decoded minute.
type MinutePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Valid     bool   `json:"valid"`
	Time      string `json:"time,omitempty"`
	CEST      bool   `json:"cest"`
	Weekday   int    `json:"weekday,omitempty"` // ISO 8601, 1 = Monday; omitted for telegram weekday 7
	Bits      int    `json:"bits"`
	Telegram  string `json:"telegram"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a MINUTE event.
func FormatPayload(event logic.Event) ([]byte, error) {
	if event.Type != logic.EventMinute {
		return nil, fmt.Errorf("cannot format %s event", event.Type)
	}
	p := MinutePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(event.Type),
		Valid:     event.Valid(),
		Bits:      event.Bits,
		Telegram:  fmt.Sprintf("%015x", uint64(event.Telegram)),
	}
	if event.Valid() {
		p.Time = event.Time.Time().Format(time.RFC3339)
		p.CEST = event.Time.CEST
		p.Weekday = event.Time.ISOWeekday()
	} else if event.Err != nil {
		p.Error = event.Err.Error()
	}
	return json.Marshal(Payload{DCF77: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
