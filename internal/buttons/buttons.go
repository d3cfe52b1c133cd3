// Package buttons turns debounced GPIO presses into controller triggers.
package buttons

import (
	"log/slog"
	"time"

	"github.com/sweeney/cec-dpms/internal/gpio"
	"github.com/sweeney/cec-dpms/internal/logic"
	"github.com/sweeney/cec-dpms/internal/signals"
)

// Source is the trigger name recorded on flags raised by a button.
const Source = "GPIO"

// Raiser delivers a synthetic trigger. *signals.Registry implements it.
type Raiser interface {
	Raise(kind signals.Kind, source string) error
}

// Watcher polls a gpio.Reader and raises the matching flag on each press.
type Watcher struct {
	reader   gpio.Reader
	raiser   Raiser
	detector *logic.Detector
	logger   *slog.Logger
	now      func() time.Time

	// consecutive read failures; only the first of a run is logged at warn
	failures int
}

// NewWatcher creates a watcher with the given debounce duration.
func NewWatcher(reader gpio.Reader, raiser Raiser, debounce time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		reader:   reader,
		raiser:   raiser,
		detector: logic.NewDetector(debounce),
		logger:   logger.With("component", "buttons"),
		now:      time.Now,
	}
}

// Run samples the buttons on every tick until done is closed.
func (w *Watcher) Run(tick <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-tick:
			w.Poll(w.now())
		}
	}
}

// Poll takes one sample and raises a flag for every press it completes.
func (w *Watcher) Poll(t time.Time) []logic.Press {
	on, off, err := w.reader.Read()
	if err != nil {
		w.failures++
		if w.failures == 1 {
			w.logger.Warn("gpio read error", "error", err)
		} else {
			w.logger.Debug("gpio read error", "error", err, "consecutive", w.failures)
		}
		return nil
	}
	if w.failures > 0 {
		w.logger.Info("gpio read recovered", "failures", w.failures)
		w.failures = 0
	}

	wasBaselined := w.detector.IsBaselined()
	presses := w.detector.Process(logic.Input{On: on, Off: off, Time: t})
	if !wasBaselined && w.detector.IsBaselined() {
		onState, offState := w.detector.CurrentState()
		w.logger.Debug("buttons baselined", "power_on", onState, "power_off", offState)
	}

	for _, p := range presses {
		kind := kindFor(p.Button)
		w.logger.Info("button pressed", "button", p.Button)
		if err := w.raiser.Raise(kind, Source); err != nil {
			w.logger.Warn("raise failed", "button", p.Button, "error", err)
		}
	}
	return presses
}

func kindFor(b logic.Button) signals.Kind {
	if b == logic.ButtonPowerOff {
		return signals.PowerOff
	}
	return signals.PowerOn
}
