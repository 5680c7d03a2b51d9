package cardqueue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

func TestBufferPoolAllocateFreshWhenEmpty(t *testing.T) {
	pool := cardqueue.NewBufferPool(8, cardqueue.AllocTagWCQ)

	buf := pool.Allocate()
	require.Equal(t, 8, buf.Capacity())
	require.True(t, buf.Empty())

	allocated, released := pool.Stats()
	require.Equal(t, int64(1), allocated)
	require.Equal(t, int64(0), released)
}

func TestBufferPoolReusesReleasedBuffer(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagDCQ)

	first := pool.Allocate()
	pool.Release(first)

	second := pool.Allocate()
	require.Same(t, first, second)

	allocated, released := pool.Stats()
	require.Equal(t, int64(1), allocated)
	require.Equal(t, int64(1), released)
}

func TestBufferPoolReleaseResetsIndexOnNextAllocate(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)

	buf := pool.Allocate()
	buf.Data()[0] = 42
	pool.Release(buf)

	reused := pool.Allocate()
	require.True(t, reused.Empty())
}

func TestBufferPoolIdleResidencyIsObservational(t *testing.T) {
	pool := cardqueue.NewBufferPool(2048, cardqueue.AllocTagWCQ)

	buf := pool.Allocate()
	buf.Data()[0] = 7
	buf.Data()[2047] = 9
	pool.Release(buf)

	resident, probed := pool.IdleResidency()
	require.GreaterOrEqual(t, resident, 0)
	require.GreaterOrEqual(t, probed, resident)

	// The probe must not have disturbed the released buffer's contents.
	reused := pool.Allocate()
	require.Same(t, buf, reused)
	require.Equal(t, uintptr(7), reused.Data()[0])
	require.Equal(t, uintptr(9), reused.Data()[2047])
}

func TestBufferPoolConcurrentAllocateRelease(t *testing.T) {
	pool := cardqueue.NewBufferPool(16, cardqueue.AllocTagWCQ)

	var wg sync.WaitGroup

	for range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 50 {
				buf := pool.Allocate()
				pool.Release(buf)
			}
		}()
	}

	wg.Wait()

	allocated, released := pool.Stats()
	require.Equal(t, int64(32*50), released)
	require.LessOrEqual(t, allocated, int64(32*50))
}
