// Package progress delivers batch progress to whoever displays it.
package progress

import (
	"errors"
	"sync"
)

// ErrStopped is returned by Invoke once the dispatcher has stopped.
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher owns the UI goroutine. Display state is only ever touched from
// inside Run; other goroutines hand their work over with Invoke and wait for
// it to finish.
type Dispatcher struct {
	calls    chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. Call Run on the UI goroutine.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		calls:  make(chan func()),
		stopCh: make(chan struct{}),
	}
}

// Run executes invoked functions one at a time until Stop is called.
func (d *Dispatcher) Run() {
	for {
		select {
		case fn := <-d.calls:
			fn()
		case <-d.stopCh:
			return
		}
	}
}

// Invoke runs fn on the UI goroutine and waits for it to return. Calls from
// several goroutines run one after another, never concurrently.
//
// Invoke must not be called from the UI goroutine, including from inside a
// function it is running: Run cannot take the nested call while it waits on
// the outer one, so the UI goroutine blocks forever. Code already on the UI
// goroutine calls fn directly instead.
func (d *Dispatcher) Invoke(fn func()) error {
	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn()
	}
	select {
	case d.calls <- call:
	case <-d.stopCh:
		return ErrStopped
	}
	<-done
	return nil
}

// Stop ends Run. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
