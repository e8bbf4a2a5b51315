package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRunsFactoryOncePerOutstandingKey(t *testing.T) {
	d := New(nil)
	var calls int32
	release := make(chan struct{})

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = Do(context.Background(), d, "history:c1", func(ctx context.Context) (string, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "value", nil
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "value", results[i])
	}
}

func TestDoSharesErrorAndClearsKey(t *testing.T) {
	d := New(nil)
	errBoom := errors.New("boom")
	release := make(chan struct{})
	var calls int32

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = Do(context.Background(), d, "catalog", func(ctx context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 0, errBoom
			})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	got, shared, err := Do(context.Background(), d, "catalog", func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 7, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoRecoversPanicAndClearsKey(t *testing.T) {
	d := New(nil)

	_, _, err := Do(context.Background(), d, "upload:1", func(ctx context.Context) (string, error) {
		panic("kaboom")
	})
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)

	got, _, err := Do(context.Background(), d, "upload:1", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestDoWaiterCancellationDoesNotCancelSharedCall(t *testing.T) {
	d := New(nil)
	release := make(chan struct{})
	started := make(chan struct{})
	var factoryCtxErr atomic.Value

	ownerDone := make(chan string, 1)
	go func() {
		v, _, _ := Do(context.Background(), d, "model:chat:x", func(ctx context.Context) (string, error) {
			close(started)
			<-release
			if ctx.Err() != nil {
				factoryCtxErr.Store(ctx.Err())
			}
			return "resolved", nil
		})
		ownerDone <- v
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, _, err := Do(ctx, d, "model:chat:x", func(ctx context.Context) (string, error) {
			return "unexpected", nil
		})
		waiterDone <- err
	}()

	cancel()
	assert.ErrorIs(t, <-waiterDone, context.Canceled)

	close(release)
	assert.Equal(t, "resolved", <-ownerDone)
	assert.Nil(t, factoryCtxErr.Load())
}

func TestObserverReceivesOperation(t *testing.T) {
	var gotOp string
	d := New(func(op string, shared bool) { gotOp = op })

	_, _, err := Do(context.Background(), d, "history:abc", func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, "history", gotOp)
	assert.Equal(t, "plain", opOf("plain"))
}
