package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type expirerStub struct {
	mu             sync.Mutex
	calls          int
	includePending bool
	batchSize      int
}

func (e *expirerStub) ExpireDue(ctx context.Context, includePending bool, batchSize int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.includePending = includePending
	e.batchSize = batchSize
	return 0, nil
}

func TestExpirySweeperSweepsImmediatelyAndOnTick(t *testing.T) {
	expirer := &expirerStub{}
	sweeper := NewExpirySweeper(expirer, 10*time.Millisecond, 50, true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		expirer.mu.Lock()
		defer expirer.mu.Unlock()
		return expirer.calls >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	expirer.mu.Lock()
	defer expirer.mu.Unlock()
	assert.True(t, expirer.includePending)
	assert.Equal(t, 50, expirer.batchSize)
}
