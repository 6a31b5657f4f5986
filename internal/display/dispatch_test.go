package display

import (
	"errors"
	"sync"
	"testing"
)

func TestInvokeRunsOnSingleGoroutine(t *testing.T) {
	d := NewDispatcher(0)
	defer d.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		overlap bool
		count   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Invoke(func() {
				mu.Lock()
				running++
				if running > 1 {
					overlap = true
				}
				mu.Unlock()

				count++

				mu.Lock()
				running--
				mu.Unlock()
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if overlap {
		t.Fatal("dispatched actions overlapped")
	}
	if count != 20 {
		t.Fatalf("count=%d, want 20", count)
	}
}

func TestInvokeAfterStop(t *testing.T) {
	d := NewDispatcher(0)
	d.Stop()
	d.Stop()

	ran := false
	err := d.Invoke(func() { ran = true })
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("err=%v, want ErrDispatcherClosed", err)
	}
	if ran {
		t.Fatal("action ran after Stop")
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	d := NewDispatcher(0)
	defer d.Stop()

	if err := d.Invoke(func() { panic("boom") }); err == nil {
		t.Fatal("expected error from panicking action")
	}
	if err := d.Invoke(func() {}); err != nil {
		t.Fatalf("dispatcher unusable after panic: %v", err)
	}
}

func TestInvokeNil(t *testing.T) {
	d := NewDispatcher(0)
	defer d.Stop()
	if err := d.Invoke(nil); err != nil {
		t.Fatal(err)
	}
}
