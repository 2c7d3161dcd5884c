package gpio

import (
	"time"

	"github.com/sweeney/dcf77-receiver/internal/dcf77"
)

// SignalReader synthesizes the output of a DCF77 receiver module, one sample
// per Read, as if it were polled every 10ms. During each minute it transmits
// the telegram announcing the following minute, like the real transmitter.
type SignalReader struct {
	minute time.Time
	wave   []bool
	pos    int
	Closed bool
}

// NewSignalReader starts the signal at the instant start (truncated to 10ms).
func NewSignalReader(start time.Time) *SignalReader {
	s := &SignalReader{minute: start.Truncate(time.Minute)}
	s.load()
	s.pos = int(start.Sub(s.minute) / dcf77.SampleInterval)
	return s
}

func (s *SignalReader) load() {
	next := dcf77.TimeFrom(s.minute.Add(time.Minute))
	s.wave = dcf77.Waveform(dcf77.Encode(next))
	s.pos = 0
}

// Read returns the next sample of the synthesized signal.
func (s *SignalReader) Read() (bool, error) {
	if s.pos >= len(s.wave) {
		s.minute = s.minute.Add(time.Minute)
		s.load()
	}
	v := s.wave[s.pos]
	s.pos++
	return v, nil
}

// Close marks the reader as closed.
func (s *SignalReader) Close() error {
	s.Closed = true
	return nil
}
