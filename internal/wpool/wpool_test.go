package wpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/wpool"
)

func TestPoolProcessesAllSubmittedTasks(t *testing.T) {
	var processed int64
	var wg sync.WaitGroup
	wg.Add(50)

	p := wpool.New(4, 0, func(_ *tomb.Tomb, task any) error {
		atomic.AddInt64(&processed, 1)
		wg.Done()
		return nil
	})

	tb := &tomb.Tomb{}
	tb.Go(func() error { return p.Run(tb) })

	for i := 0; i < 50; i++ {
		p.Submit(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to process")
	}

	assert.Equal(t, int64(50), atomic.LoadInt64(&processed))

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
}

func TestPoolStopsOnTombDeath(t *testing.T) {
	p := wpool.New(2, 0, func(_ *tomb.Tomb, task any) error {
		return nil
	})

	tb := &tomb.Tomb{}
	tb.Go(func() error { return p.Run(tb) })

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
}

func TestWorkerErrorKillsTomb(t *testing.T) {
	boom := assert.AnError
	p := wpool.New(1, 0, func(_ *tomb.Tomb, task any) error {
		return boom
	})

	tb := &tomb.Tomb{}
	tb.Go(func() error { return p.Run(tb) })
	p.Submit("trigger")

	err := tb.Wait()
	assert.ErrorIs(t, err, boom)
}
