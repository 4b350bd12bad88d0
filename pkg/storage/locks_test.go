package storage

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

func TestLocksDisjointHandlesDoNotContend(t *testing.T) {
	l := NewLocks()
	a, b := crypto.Pubkey{1}, crypto.Pubkey{2}

	releaseA := l.Acquire(a)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := l.Acquire(b)
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on disjoint handle blocked")
	}
}

func TestLocksSerializeOverlap(t *testing.T) {
	l := NewLocks()
	order := crypto.Pubkey{7}
	var inside int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// each worker also locks its own handle, listed in varying order
			own := crypto.Pubkey{byte(100 + i)}
			release := l.Acquire(own, order, own)
			defer release()
			if n := atomic.AddInt32(&inside, 1); n != 1 {
				t.Errorf("%d holders inside critical section", n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}(i)
	}
	wg.Wait()

	if held := l.Held(); held != 0 {
		t.Errorf("entries left after release: %d", held)
	}
}

func TestLocksReleaseIdempotent(t *testing.T) {
	l := NewLocks()
	release := l.Acquire(crypto.Pubkey{1}, crypto.Pubkey{2})
	release()
	release()

	if held := l.Held(); held != 0 {
		t.Errorf("held = %d, want 0", held)
	}
}
