package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOPerProducer(t *testing.T) {
	q := New()
	q.Send(1)
	q.Send(2)
	q.Send(3)

	for _, want := range []int{1, 2, 3} {
		v, ok := q.Recv()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

func TestConcurrentProducersNoLoss(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Send(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := 0; i < producers*perProducer; i++ {
		v, ok := q.Recv()
		require.True(t, ok)
		seen[v.(int)] = true
	}
	require.Len(t, seen, producers*perProducer)
}

func TestSendAfterCloseStillDelivered(t *testing.T) {
	q := New()
	q.Send("before-shutdown")
	q.Close()
	q.Send("after-close")

	v, ok := q.Recv()
	require.True(t, ok)
	require.Equal(t, "before-shutdown", v)

	v, ok = q.Recv()
	require.True(t, ok)
	require.Equal(t, "after-close", v)

	_, ok = q.Recv()
	require.False(t, ok)
}
