package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	State         string      `json:"state"`
	Second        int         `json:"second"`
	Synced        bool        `json:"synced"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	LastBit       *BitJSON    `json:"last_bit,omitempty"`
	LastMinute    *MinuteJSON `json:"last_minute,omitempty"`
	LastValid     string      `json:"last_valid,omitempty"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"event_counts"`
	Config        ConfigJSON  `json:"config"`
}

// BitJSON is the JSON representation of the last bit.
type BitJSON struct {
	Second int  `json:"second"`
	Value  int  `json:"value"`
	Faulty bool `json:"faulty,omitempty"`
}

// MinuteJSON is the JSON representation of the last decoded minute.
type MinuteJSON struct {
	Timestamp string `json:"timestamp"`
	Valid     bool   `json:"valid"`
	Time      string `json:"time,omitempty"`
	Bits      int    `json:"bits"`
	Telegram  string `json:"telegram"`
	Error     string `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Bits           int `json:"bits"`
	FaultyBits     int `json:"faulty_bits"`
	Minutes        int `json:"minutes"`
	ValidMinutes   int `json:"valid_minutes"`
	InvalidMinutes int `json:"invalid_minutes"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip"`
	Pin         int    `json:"pin"`
	Invert      bool   `json:"invert"`
	Simulate    bool   `json:"simulate"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         snap.State.String(),
		Second:        snap.Second,
		Synced:        snap.Synced,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Bits:           snap.Counts.Bits,
			FaultyBits:     snap.Counts.FaultyBits,
			Minutes:        snap.Counts.Minutes,
			ValidMinutes:   snap.Counts.ValidMinutes,
			InvalidMinutes: snap.Counts.InvalidMinutes,
		},
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			Pin:         snap.Config.Pin,
			Invert:      snap.Config.Invert,
			Simulate:    snap.Config.Simulate,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if b := snap.LastBit; b != nil {
		inner.LastBit = &BitJSON{Second: b.Second, Faulty: b.Faulty}
		if b.Value {
			inner.LastBit.Value = 1
		}
	}
	if m := snap.LastMinute; m != nil {
		inner.LastMinute = &MinuteJSON{
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
			Valid:     m.Valid(),
			Bits:      m.Bits,
			Telegram:  fmt.Sprintf("%015x", uint64(m.Telegram)),
		}
		if m.Valid() {
			inner.LastMinute.Time = m.Time.Time().Format(time.RFC3339)
		} else if m.Err != nil {
			inner.LastMinute.Error = m.Err.Error()
		}
	}
	if !snap.LastValid.IsZero() {
		inner.LastValid = snap.LastValid.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
