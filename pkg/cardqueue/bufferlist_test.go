package cardqueue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

func TestBufferListPushPopOrderIsLIFO(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)
	l := cardqueue.NewBufferList()

	a := pool.Allocate()
	b := pool.Allocate()

	l.Push(a)
	l.Push(b)

	require.Same(t, b, l.Pop())
	require.Same(t, a, l.Pop())
	require.Nil(t, l.Pop())
}

func TestBufferListNumCardsTracksPushAndPop(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)
	l := cardqueue.NewBufferList()

	buf := pool.Allocate()
	l.Push(buf)
	require.Equal(t, int64(buf.Size()), l.NumCards())

	popped := l.Pop()
	require.Same(t, buf, popped)
	require.Equal(t, int64(0), l.NumCards())
}

func TestBufferListPopAllDetachesWholeChain(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)
	l := cardqueue.NewBufferList()

	l.Push(pool.Allocate())
	l.Push(pool.Allocate())
	l.Push(pool.Allocate())

	head := l.PopAll()
	require.NotNil(t, head)
	require.Nil(t, l.Pop())

	l.ResetNumCards()
	require.Equal(t, int64(0), l.NumCards())
}

func TestBufferListConcurrentPushPop(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)
	l := cardqueue.NewBufferList()

	const n = 200

	var wg sync.WaitGroup

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			l.Push(pool.Allocate())
		}()
	}

	wg.Wait()

	popped := 0

	for {
		buf := l.Pop()
		if buf == nil {
			break
		}

		popped++
	}

	require.Equal(t, n, popped)
}

func TestBufferListSynchronizeReclaimReturnsAfterCompletedPop(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)
	l := cardqueue.NewBufferList()
	l.Push(pool.Allocate())

	popped := l.Pop()
	require.NotNil(t, popped)

	l.SynchronizeReclaim()
	pool.Release(popped)
}
