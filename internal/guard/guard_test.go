package guard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledIsAlwaysZero(t *testing.T) {
	Enable(false)
	Acquired()
	assert.Equal(t, 0, HeldByCaller())
}

func TestAcquireRelease(t *testing.T) {
	Enable(true)
	defer Enable(false)

	assert.Equal(t, 0, HeldByCaller())
	Acquired()
	assert.Equal(t, 1, HeldByCaller())
	Acquired()
	assert.Equal(t, 2, HeldByCaller())
	Released()
	Released()
	assert.Equal(t, 0, HeldByCaller())
}

func TestCountsArePerGoroutine(t *testing.T) {
	Enable(true)
	defer Enable(false)

	Acquired()
	defer Released()

	var other int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = HeldByCaller()
	}()
	wg.Wait()

	assert.Equal(t, 1, HeldByCaller())
	assert.Equal(t, 0, other)
}
