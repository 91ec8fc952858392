package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocksDefaultStripes(t *testing.T) {
	assert.Len(t, NewKeyedLocks(0).stripes, 512)
	assert.Len(t, NewKeyedLocks(-1).stripes, 512)
	assert.Len(t, NewKeyedLocks(8).stripes, 8)
}

// Increments under the same key never race, even with far fewer stripes
// than goroutines.
func TestKeyedLocksSerializeSameKey(t *testing.T) {
	locks := NewKeyedLocks(4)

	const writers = 200
	n := 0

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("krets/krets-03-0301-0101-sentrum")
			n++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, writers, n)
}
