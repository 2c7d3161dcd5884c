package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/dcf77-receiver/internal/dcf77"
)

// Receiver drives a dcf77.Decoder and reports what each sample produced.
type Receiver struct {
	decoder       *dcf77.Decoder
	synced        bool
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewReceiver creates a receiver. The startTime is used for calculating uptime
// in heartbeat events.
func NewReceiver(startTime time.Time) *Receiver {
	return &Receiver{
		decoder:       dcf77.NewDecoder(),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process feeds one sample to the decoder and returns any events it produced.
// The decoder holds BIT_RECEIVED, FAULTY_BIT and END_OF_CYCLE for exactly one
// sample, so each occurrence yields one event.
func (r *Receiver) Process(input Input) []Event {
	bits := r.decoder.Seconds()
	r.decoder.Ingest(input.High)

	switch {
	case r.decoder.BitComplete():
		value, _ := r.decoder.LatestBit()
		r.eventCounts.Bits++
		return []Event{{
			Timestamp: input.Time,
			Type:      EventBit,
			Second:    r.decoder.Seconds() - 1,
			Value:     value,
		}}

	case r.decoder.BitFaulty():
		r.eventCounts.FaultyBits++
		return []Event{{
			Timestamp: input.Time,
			Type:      EventFaultyBit,
			Second:    r.decoder.Seconds() - 1,
		}}

	case r.decoder.EndOfCycle():
		if !r.synced {
			// Bits before the first gap were counted from an arbitrary second.
			r.synced = true
			return nil
		}
		if bits == 0 {
			// Repeated gap without pulses: no signal.
			return nil
		}
		return []Event{r.minute(input.Time, bits)}
	}
	return nil
}

func (r *Receiver) minute(now time.Time, bits int) Event {
	e := Event{
		Timestamp: now,
		Type:      EventMinute,
		Telegram:  r.decoder.Telegram() & (1<<dcf77.TelegramBits - 1),
		Bits:      bits,
	}
	if bits != dcf77.TelegramBits {
		e.Err = fmt.Errorf("%w: got %d, want %d", ErrBitCount, bits, dcf77.TelegramBits)
	} else {
		e.Time, e.Err = e.Telegram.Decode()
	}

	r.eventCounts.Minutes++
	if e.Err != nil {
		r.eventCounts.InvalidMinutes++
	} else {
		r.eventCounts.ValidMinutes++
	}
	return e
}

// Synced reports whether the minute gap has been seen at least once.
func (r *Receiver) Synced() bool {
	return r.synced
}

// State returns the decoder state and the current second of the minute.
func (r *Receiver) State() (dcf77.State, int) {
	return r.decoder.State(), r.decoder.Seconds()
}

// EventCountsSnapshot returns a copy of the counters.
func (r *Receiver) EventCountsSnapshot() EventCounts {
	return r.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// if interval is <= 0 (disabled). Unlike events, heartbeats are sent before
// sync so a missing signal is visible.
func (r *Receiver) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(r.lastHeartbeat) < interval {
		return nil
	}

	r.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(r.startTime),
		Counts:    r.eventCounts,
		Synced:    r.synced,
	}
}
