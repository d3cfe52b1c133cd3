// Package signals maps process signals onto pending-event flags that the
// controller drains from its own goroutine.
package signals

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Errors returned by the registry.
var (
	ErrUnknownKind = errors.New("signals: unknown trigger kind")
	ErrStopped     = errors.New("signals: registry stopped")
)

// Kind is a recognised trigger.
type Kind int

const (
	PowerOn Kind = iota
	PowerOff
	Terminate
)

func (k Kind) String() string {
	switch k {
	case PowerOn:
		return "power-on"
	case PowerOff:
		return "power-off"
	case Terminate:
		return "terminate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Signals returns the OS signals bound to k.
func (k Kind) Signals() ([]os.Signal, error) {
	switch k {
	case PowerOn:
		return []os.Signal{unix.SIGUSR1}, nil
	case PowerOff:
		return []os.Signal{unix.SIGUSR2}, nil
	case Terminate:
		return []os.Signal{unix.SIGTERM, unix.SIGINT}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
}

// Flag is a one-bit pending indicator. Set from the dispatch goroutine,
// drained by the controller.
type Flag struct {
	kind    Kind
	pending atomic.Bool
	source  atomic.Value // string
}

// NewFlag returns a flag bound to no signal. It is only set through Set.
func NewFlag(kind Kind) *Flag {
	return &Flag{kind: kind}
}

// Kind returns the trigger this flag is bound to.
func (f *Flag) Kind() Kind {
	return f.kind
}

// Pending reports whether at least one undrained trigger arrived.
func (f *Flag) Pending() bool {
	return f.pending.Load()
}

// Clear resets the flag after the caller acted on it.
func (f *Flag) Clear() {
	f.pending.Store(false)
}

// Take clears the flag and reports whether it was set.
func (f *Flag) Take() bool {
	return f.pending.Swap(false)
}

// Source returns the name of the most recent delivery, e.g. SIGUSR1 or GPIO.
func (f *Flag) Source() string {
	s, _ := f.source.Load().(string)
	return s
}

// Set marks the flag pending on behalf of source.
func (f *Flag) Set(source string) {
	f.source.Store(source)
	f.pending.Store(true)
}

// Registry binds trigger kinds to flags.
type Registry struct {
	mu       sync.Mutex
	flags    map[Kind]*Flag
	bySignal map[os.Signal]Kind
	stopped  bool

	ch   chan os.Signal
	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	notify func(c chan<- os.Signal, sig ...os.Signal)
	reset  func(c chan<- os.Signal)
}

// NewRegistry creates a registry and starts its dispatch goroutine.
func NewRegistry() *Registry {
	return newRegistry(signal.Notify, signal.Stop)
}

func newRegistry(notify func(chan<- os.Signal, ...os.Signal), reset func(chan<- os.Signal)) *Registry {
	r := &Registry{
		flags:    make(map[Kind]*Flag),
		bySignal: make(map[os.Signal]Kind),
		ch:       make(chan os.Signal, 4),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		notify:   notify,
		reset:    reset,
	}
	r.wg.Add(1)
	go r.dispatch()
	return r
}

// Register binds kind's signals to a flag initialised false. Registering the
// same kind twice returns the existing flag.
func (r *Registry) Register(kind Kind) (*Flag, error) {
	sigs, err := kind.Signals()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrStopped
	}
	if f, ok := r.flags[kind]; ok {
		return f, nil
	}

	f := NewFlag(kind)
	r.flags[kind] = f
	for _, s := range sigs {
		r.bySignal[s] = kind
	}
	r.notify(r.ch, sigs...)
	return f, nil
}

// Raise delivers a synthetic trigger as if one of kind's signals arrived.
func (r *Registry) Raise(kind Kind, source string) error {
	r.mu.Lock()
	f, ok := r.flags[kind]
	stopped := r.stopped
	r.mu.Unlock()

	if stopped {
		return ErrStopped
	}
	if !ok {
		return fmt.Errorf("%w: %s not registered", ErrUnknownKind, kind)
	}
	f.Set(source)
	r.poke()
	return nil
}

// Wake is poked after every delivery. Capacity one: bursts collapse.
func (r *Registry) Wake() <-chan struct{} {
	return r.wake
}

// Stop unbinds all signals and ends the dispatch goroutine. Flags keep their
// last value.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.reset(r.ch)
	close(r.done)
	r.wg.Wait()
}

func (r *Registry) dispatch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case s := <-r.ch:
			r.deliver(s)
		}
	}
}

func (r *Registry) deliver(s os.Signal) {
	r.mu.Lock()
	kind, ok := r.bySignal[s]
	var f *Flag
	if ok {
		f = r.flags[kind]
	}
	r.mu.Unlock()

	if f == nil {
		return
	}
	f.Set(signalName(s))
	r.poke()
}

func (r *Registry) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func signalName(s os.Signal) string {
	if us, ok := s.(syscall.Signal); ok {
		if name := unix.SignalName(us); name != "" {
			return name
		}
	}
	return s.String()
}
