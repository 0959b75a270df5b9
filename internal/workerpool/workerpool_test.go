package workerpool_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/workerpool"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := workerpool.New(4)
	var tb tomb.Tomb
	tb.Go(func() error {
		p.Start(&tb)
		<-tb.Dying()
		return nil
	})

	var completed int32
	const n = 50
	for i := 0; i < n; i++ {
		p.Submit(func() error {
			atomic.AddInt32(&completed, 1)
			return nil
		})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&completed) == n
	}, time.Second, time.Millisecond)

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
}

func TestPoolSurvivesATaskPanic(t *testing.T) {
	p := workerpool.New(2)
	var tb tomb.Tomb
	tb.Go(func() error {
		p.Start(&tb)
		<-tb.Dying()
		return nil
	})

	p.Submit(func() error {
		panic("boom")
	})

	var ran int32
	p.Submit(func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) == 1
	}, time.Second, time.Millisecond)

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
}

func TestPoolLogsButSurvivesTaskErrors(t *testing.T) {
	p := workerpool.New(2)
	var tb tomb.Tomb
	tb.Go(func() error {
		p.Start(&tb)
		<-tb.Dying()
		return nil
	})

	var ran int32
	p.Submit(func() error {
		atomic.AddInt32(&ran, 1)
		return assert.AnError
	})
	p.Submit(func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) == 2
	}, time.Second, time.Millisecond)

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
}
