package refcount_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-lock-free-containers/internal/refcount"
)

func TestCounter_Init(t *testing.T) {
	var c refcount.Counter
	c.Init(2)

	internal, external := c.Load()
	assert.Equal(t, int32(0), internal)
	assert.Equal(t, uint32(2), external)
}

func TestCounter_InitTooManyOwners(t *testing.T) {
	var c refcount.Counter
	assert.Panics(t, func() { c.Init(refcount.MaxExternal + 1) })
}

func TestCounter_NegativeInternal(t *testing.T) {
	var c refcount.Counter
	c.Init(1)

	// A reader may give its reference back before the slot it came
	// through folds its external count in.
	assert.False(t, c.Release())
	internal, external := c.Load()
	assert.Equal(t, int32(-1), internal)
	assert.Equal(t, uint32(1), external)

	assert.True(t, c.ReleaseExternal(1))
}

func TestCounter_ZeroNeedsBothHalves(t *testing.T) {
	var c refcount.Counter
	c.Init(2)

	// Internal count reaches zero while one external counter remains.
	assert.False(t, c.ReleaseExternal(1))
	assert.False(t, c.Release())

	internal, external := c.Load()
	require.Equal(t, int32(0), internal)
	require.Equal(t, uint32(1), external)

	assert.True(t, c.ReleaseExternal(0))
}

func TestCounter_ReleaseExternalUnderflow(t *testing.T) {
	var c refcount.Counter
	c.Init(1)
	require.True(t, c.ReleaseExternal(0))
	assert.Panics(t, func() { c.ReleaseExternal(0) })
}

// TestCounter_ConcurrentReleaseSingleZero checks that exactly one of many
// concurrent releases observes the unreferenced state.
// Run with: go test -race ./internal/refcount
func TestCounter_ConcurrentReleaseSingleZero(t *testing.T) {
	const readersPerSlot = 64

	for round := 0; round < 50; round++ {
		var c refcount.Counter
		c.Init(2)

		var zeros atomic.Int32
		var wg sync.WaitGroup
		for slot := 0; slot < 2; slot++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.ReleaseExternal(readersPerSlot) {
					zeros.Add(1)
				}
			}()
			for i := 0; i < readersPerSlot; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if c.Release() {
						zeros.Add(1)
					}
				}()
			}
		}
		wg.Wait()

		require.Equal(t, int32(1), zeros.Load(), "round %d", round)
		internal, external := c.Load()
		require.Equal(t, int32(0), internal)
		require.Equal(t, uint32(0), external)
	}
}
