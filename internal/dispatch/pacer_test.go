//go:build unit

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedInterval_WaitsTheInterval(t *testing.T) {
	pacer := NewFixedInterval(50 * time.Millisecond)

	start := time.Now()
	err := pacer.Wait(context.TODO())

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestFixedInterval_ReturnsEarlyOnCancel(t *testing.T) {
	pacer := NewFixedInterval(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := pacer.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFixedInterval_ZeroIntervalDoesNotBlock(t *testing.T) {
	assert.NoError(t, NewFixedInterval(0).Wait(context.TODO()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewFixedInterval(0).Wait(ctx), context.Canceled)
}
