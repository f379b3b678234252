package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPool_RunsSubmittedJobsConcurrently(t *testing.T) {
	p := NewPool(4, arbor.NewLogger())
	p.Start()

	var count int32
	for i := 0; i < 10; i++ {
		err := p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		assert.NoError(t, err)
	}
	p.Wait()

	assert.EqualValues(t, 10, atomic.LoadInt32(&count))
}

func TestPool_CollectsJobErrorsWithoutStoppingOtherJobs(t *testing.T) {
	p := NewPool(2, arbor.NewLogger())
	p.Start()

	boom := errors.New("boom")
	assert.NoError(t, p.Submit(func(ctx context.Context) error { return boom }))
	assert.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	p.Wait()

	errs := p.Errors()
	assert.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestPool_DefaultsToTenWorkersWhenGivenNonPositive(t *testing.T) {
	p := NewPool(0, arbor.NewLogger())
	assert.Equal(t, 10, p.maxWorkers)
}

func TestPool_ShutdownStopsAcceptingAfterCancel(t *testing.T) {
	p := NewPool(1, arbor.NewLogger())
	p.Start()
	p.Shutdown()

	err := p.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestPool_SubmitUnblocksOnContextCancelIfPoolNeverStarted(t *testing.T) {
	p := NewPool(1, arbor.NewLogger())

	// Fill the buffered queue (capacity maxWorkers*2) so a further Submit
	// can only proceed via the context-cancelled branch.
	for i := 0; i < cap(p.jobs); i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	}
	p.cancel()

	done := make(chan error, 1)
	go func() { done <- p.Submit(func(ctx context.Context) error { return nil }) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after pool context was cancelled")
	}
}
