package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoralabs/amora-client/internal/model/enum"
)

func TestQueueGrantsUpToLimit(t *testing.T) {
	q := newDispatchQueue(2, 0)
	ctx := context.Background()

	releaseA, err := q.acquire(ctx, enum.PriorityMedium)
	require.NoError(t, err)
	releaseB, err := q.acquire(ctx, enum.PriorityMedium)
	require.NoError(t, err)

	blocked := make(chan struct{})
	go func() {
		release, err := q.acquire(ctx, enum.PriorityMedium)
		assert.NoError(t, err)
		release()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("third acquire should block at limit 2")
	case <-time.After(50 * time.Millisecond):
	}

	releaseA()
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("released slot not granted")
	}
	releaseB()
}

func TestQueueStrictPriorityOrder(t *testing.T) {
	q := newDispatchQueue(1, 0)
	ctx := context.Background()

	release, err := q.acquire(ctx, enum.PriorityHigh)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []enum.Priority
	var wg sync.WaitGroup

	enqueue := func(p enum.Priority) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := q.acquire(ctx, p)
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			release()
		}()
		time.Sleep(20 * time.Millisecond) // deterministic enqueue order
	}

	enqueue(enum.PriorityMedium)
	enqueue(enum.PriorityMedium)
	enqueue(enum.PriorityHigh)

	release()
	wg.Wait()

	require.Len(t, order, 3)
	assert.Equal(t, enum.PriorityHigh, order[0])
	assert.Equal(t, enum.PriorityMedium, order[1])
	assert.Equal(t, enum.PriorityMedium, order[2])
}

func TestQueueHighArrivalCancelsQueuedLow(t *testing.T) {
	q := newDispatchQueue(1, 0)
	ctx := context.Background()

	release, err := q.acquire(ctx, enum.PriorityMedium)
	require.NoError(t, err)

	lowErr := make(chan error, 1)
	go func() {
		_, err := q.acquire(ctx, enum.PriorityLow)
		lowErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	highDone := make(chan struct{})
	go func() {
		release, err := q.acquire(ctx, enum.PriorityHigh)
		assert.NoError(t, err)
		release()
		close(highDone)
	}()

	select {
	case err := <-lowErr:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("queued low-priority entry was not cancelled")
	}

	release()
	select {
	case <-highDone:
	case <-time.After(time.Second):
		t.Fatal("high-priority entry never granted")
	}
}

func TestQueueOverflowCancelsOldestLowest(t *testing.T) {
	q := newDispatchQueue(1, 2)
	ctx := context.Background()

	release, err := q.acquire(ctx, enum.PriorityHigh)
	require.NoError(t, err)

	lowErr := make(chan error, 1)
	go func() {
		_, err := q.acquire(ctx, enum.PriorityLow)
		lowErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := q.acquire(ctx, enum.PriorityMedium)
			if assert.NoError(t, err) {
				release()
			}
		}()
		time.Sleep(20 * time.Millisecond)
	}

	// The third waiting entry exceeds depth 2; the oldest entry of the
	// lowest occupied tier is cancelled, not a medium one.
	select {
	case err := <-lowErr:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("overflow did not cancel the queued low-priority entry")
	}

	release()
	wg.Wait()
}

func TestQueueAcquireRespectsContext(t *testing.T) {
	q := newDispatchQueue(1, 0)
	release, err := q.acquire(context.Background(), enum.PriorityMedium)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = q.acquire(ctx, enum.PriorityMedium)
	require.ErrorIs(t, err, ErrCancelled)
}
