package dcf77

// Pulse widths and slot length in samples of SampleInterval.
const (
	SamplesPerSecond = 100
	SamplesPerMinute = 60 * SamplesPerSecond
	zeroPulseSamples = 10
	onePulseSamples  = 20
)

// Waveform returns the ideal receiver output for one minute of t: a 100ms
// pulse for a 0, a 200ms pulse for a 1, and no pulse in second 59.
func Waveform(t Telegram) []bool {
	out := make([]bool, SamplesPerMinute)
	for sec := 0; sec < TelegramBits; sec++ {
		width := zeroPulseSamples
		if t.Bit(sec) {
			width = onePulseSamples
		}
		base := sec * SamplesPerSecond
		for i := 0; i < width; i++ {
			out[base+i] = true
		}
	}
	return out
}
