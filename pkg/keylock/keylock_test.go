package keylock_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taple-mesh/node/pkg/keylock"
)

func TestSameKeySerializes(t *testing.T) {
	m := keylock.New(4)
	var active int32
	var sawOverlap int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("same-key")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			if n > 1 {
				atomic.StoreInt32(&sawOverlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), sawOverlap, "critical sections for the same key must not overlap")
}

func TestUnlockReleasesStripe(t *testing.T) {
	m := keylock.New(4)
	unlock := m.Lock("k")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock2 := m.Lock("k")
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on same key after unlock should not block")
	}
}
