//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the buttons from the Linux GPIO character device.
type RealReader struct {
	chip    *gpiocdev.Chip
	onLine  *gpiocdev.Line
	offLine *gpiocdev.Line
}

// NewRealReader requests the button lines on chip (e.g. "gpiochip0").
// A negative pin leaves that button unattached.
func NewRealReader(chipName string, pinOn, pinOff int) (*RealReader, error) {
	if pinOn < 0 && pinOff < 0 {
		return nil, errors.New("gpio: no button pins configured")
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	r := &RealReader{chip: chip}

	// Buttons short the line to ground, so bias it high.
	if pinOn >= 0 {
		r.onLine, err = chip.RequestLine(pinOn, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request power-on pin %d: %w", pinOn, err)
		}
	}
	if pinOff >= 0 {
		r.offLine, err = chip.RequestLine(pinOff, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request power-off pin %d: %w", pinOff, err)
		}
	}

	return r, nil
}

// Read returns the logical button states. Raw 0 = pressed.
func (r *RealReader) Read() (bool, bool, error) {
	on, err := pressed(r.onLine)
	if err != nil {
		return false, false, fmt.Errorf("read power-on pin: %w", err)
	}
	off, err := pressed(r.offLine)
	if err != nil {
		return false, false, fmt.Errorf("read power-off pin: %w", err)
	}
	return on, off, nil
}

func pressed(l *gpiocdev.Line) (bool, error) {
	if l == nil {
		return false, nil
	}
	v, err := l.Value()
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

// Close releases the lines and the chip. Lines are returned to plain
// inputs without bias so the pins are left as the kernel found them.
func (r *RealReader) Close() error {
	var errs []error

	lines := []struct {
		name string
		line *gpiocdev.Line
	}{{"power-on", r.onLine}, {"power-off", r.offLine}}
	for _, pl := range lines {
		name, l := pl.name, pl.line
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithBiasDisabled); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	r.onLine, r.offLine = nil, nil

	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	return errors.Join(errs...)
}
