package display

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrDispatcherClosed is returned by Invoke once the dispatcher has stopped.
var ErrDispatcherClosed = errors.New("display: dispatcher closed")

// Dispatcher runs actions on a single UI goroutine. Widget state is only
// mutated from that goroutine.
type Dispatcher struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher creates and starts a dispatcher.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case fn := <-d.queue:
			fn()
		}
	}
}

// Invoke runs fn on the UI goroutine and blocks until it has finished.
// It must not be called from the UI goroutine itself.
func (d *Dispatcher) Invoke(fn func()) error {
	if fn == nil {
		return nil
	}
	result := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("display: dispatched action panicked: %v", r)
			}
		}()
		fn()
		result <- nil
	}

	select {
	case <-d.done:
		return ErrDispatcherClosed
	case d.queue <- job:
	}

	select {
	case err := <-result:
		return err
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Stop terminates the UI goroutine. Queued actions that have not started
// are dropped and their callers receive ErrDispatcherClosed.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}
