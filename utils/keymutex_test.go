package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	km := NewKeyMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("task:1")
			defer km.Unlock("task:1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, counter)
}

func TestKeyMutexIndependentKeys(t *testing.T) {
	km := NewKeyMutex()
	km.Lock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	<-done

	km.Unlock("a")
}

func TestKeyMutexUnlockUnheldPanics(t *testing.T) {
	km := NewKeyMutex()
	assert.Panics(t, func() { km.Unlock("never-locked") })
}
