package dcf77

import "time"

// SampleInterval is the cadence at which Decoder.Ingest must be called.
const SampleInterval = 10 * time.Millisecond

// Thresholds in ticks of SampleInterval.
const (
	gapTicks       = 180 // 1.8s without a pulse marks the missing 59th second
	windowTicks    = 20  // 200ms sampling window at the start of each bit slot
	halfTicks      = 10  // 100ms, splits the window into the 0 and 1 halves
	slotTicks      = 90  // 900ms after the leading edge the slot tail is over
	pulseThreshold = 3   // a half needs more high samples than this to count
	noiseThreshold = 10  // more high samples than this in the tail is noise
)

// State is the phase of the decoder within the current bit slot.
type State int

const (
	WaitingForPhase State = iota
	PhaseFound
	BitReceived
	FaultyBit
	EndOfCycle
	Idle
)

func (s State) String() string {
	switch s {
	case WaitingForPhase:
		return "WAITING_FOR_PHASE"
	case PhaseFound:
		return "PHASE_FOUND"
	case BitReceived:
		return "BIT_RECEIVED"
	case FaultyBit:
		return "FAULTY_BIT"
	case EndOfCycle:
		return "END_OF_CYCLE"
	case Idle:
		return "IDLE"
	}
	return "UNKNOWN"
}

// Decoder is a timeslot based DCF77 decoder. Feed it one pin level every
// 10ms through Ingest and inspect the queries after each call.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	// scancount counts ticks since the last leading edge (or reset). It is
	// shared by silence detection, pulse sampling and the slot tail.
	scancount uint8
	lowcount  uint8
	highcount uint8
	idlecount uint8
	state     State
	data      uint64
	datapos   int
}

// NewDecoder returns a decoder waiting for the first pulse.
func NewDecoder() *Decoder {
	return &Decoder{state: WaitingForPhase}
}

// Ingest consumes one sample. high is true while the receiver reports a pulse.
func (d *Decoder) Ingest(high bool) {
	switch d.state {
	case WaitingForPhase, EndOfCycle, FaultyBit:
		switch {
		case high:
			d.lowcount = 1
			d.highcount = 0
			d.scancount = 0
			d.state = PhaseFound
		case d.scancount > gapTicks:
			d.datapos = 0
			d.scancount = 0
			d.state = EndOfCycle
		default:
			d.state = WaitingForPhase
		}

	case PhaseFound:
		if d.scancount < windowTicks {
			if high {
				if d.scancount < halfTicks {
					d.lowcount++
				} else {
					d.highcount++
				}
			}
			break
		}
		pos := d.datapos
		d.datapos++
		switch {
		case d.highcount > pulseThreshold:
			d.setBit(pos, true)
			d.state = BitReceived
		case d.lowcount > pulseThreshold:
			d.setBit(pos, false)
			d.state = BitReceived
		default:
			// Ambiguous pulse. Skip it; the telegram repeats next minute.
			d.state = FaultyBit
		}

	case BitReceived, Idle:
		if high {
			d.idlecount++
		}
		if d.scancount < slotTicks {
			d.state = Idle
			break
		}
		if d.idlecount > noiseThreshold {
			d.idlecount = 0
			d.scancount = 0
		}
		d.state = WaitingForPhase
	}

	d.scancount++
}

func (d *Decoder) setBit(pos int, v bool) {
	if pos >= 64 {
		return
	}
	if v {
		d.data |= 1 << uint(pos)
	} else {
		d.data &^= 1 << uint(pos)
	}
}

// State returns the state after the most recent Ingest.
func (d *Decoder) State() State {
	return d.state
}

// BitComplete reports whether the last sample completed a bit.
func (d *Decoder) BitComplete() bool {
	return d.state == BitReceived
}

// BitFaulty reports whether the last bit could not be identified as 0 or 1.
func (d *Decoder) BitFaulty() bool {
	return d.state == FaultyBit
}

// EndOfCycle reports whether the last sample detected the minute gap.
func (d *Decoder) EndOfCycle() bool {
	return d.state == EndOfCycle
}

// LatestBit returns the most recently written bit. ok is false when no bit
// has been decoded since the last minute boundary.
func (d *Decoder) LatestBit() (bit, ok bool) {
	if d.datapos == 0 {
		return false, false
	}
	return Telegram(d.data).Bit(d.datapos - 1), true
}

// Seconds returns the number of bits decoded since the last minute boundary,
// which is also the current second of the minute.
func (d *Decoder) Seconds() int {
	return d.datapos
}

// RawData returns the accumulator. Bits at and above Seconds are left over
// from the previous minute.
func (d *Decoder) RawData() uint64 {
	return d.data
}

// Telegram returns the accumulator as a Telegram.
func (d *Decoder) Telegram() Telegram {
	return NewTelegram(d.data)
}
