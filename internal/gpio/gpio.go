// Package gpio provides DCF77 receiver input reading with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake and signal implementations allow running without hardware.
package gpio

// Reader reads the receiver output pin.
type Reader interface {
	// Read returns the logical level: true while the receiver signals a
	// pulse (carrier reduced). Inversion is applied by the implementation.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Defaults for a receiver module on a Raspberry Pi.
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17 // BCM numbering
)
