package rsession

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleflightLockerLockUnlock(t *testing.T) {
	l := NewSingleflightLocker()
	h, err := l.Lock(context.Background(), "cluster-a")
	require.NoError(t, err)
	l.Unlock(h)
}

func TestSingleflightLockerDoDeduplicatesConcurrentCallers(t *testing.T) {
	l := NewSingleflightLocker().(SingleflightDoer)

	var calls int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]interface{}, 8)

	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := callDo(l, "shared-key", &calls)
			require.NoError(t, err)
			results[i] = v
		}()
	}
	close(start)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, "loaded", v)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func callDo(l SingleflightDoer, name string, calls *int32) (interface{}, error) {
	v, err, _ := l.Do(name, func() (interface{}, error) {
		atomic.AddInt32(calls, 1)
		time.Sleep(time.Millisecond)
		return "loaded", nil
	})
	return v, err
}
