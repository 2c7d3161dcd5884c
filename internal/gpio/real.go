//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the receiver pin using the Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	invert bool
}

// NewRealReader requests pin on chip as an input. Set invert for modules with
// an open-collector output, which pull the line low during a pulse; those also
// get the internal pull-up enabled.
func NewRealReader(chip string, pin int, invert bool) (*RealReader, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	bias := gpiocdev.WithPullDown
	if invert {
		bias = gpiocdev.WithPullUp
	}
	line, err := c.RequestLine(pin, gpiocdev.AsInput, bias, gpiocdev.WithConsumer("dcf77-receiver"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}

	return &RealReader{
		chip:   c,
		line:   line,
		invert: invert,
	}, nil
}

// Read returns the logical pulse level.
func (r *RealReader) Read() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return (raw == 1) != r.invert, nil
}

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing.
func (r *RealReader) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
