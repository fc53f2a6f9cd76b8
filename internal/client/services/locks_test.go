package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_Serializes(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	counter := 0
	max := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("entry1")
			defer unlock()
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()
			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlock1 := km.lock("a")
	done := make(chan struct{})
	go func() {
		unlock2 := km.lock("b")
		unlock2()
		close(done)
	}()
	<-done
	unlock1()
}

func TestKeyedMutex_CleansUp(t *testing.T) {
	km := newKeyedMutex()
	unlock := km.lock("a")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
