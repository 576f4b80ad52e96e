package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
	// revertCode is the JSON-RPC error code nodes use for reverted eth_call execution.
	revertCode = 3
)

// withRetry runs fn up to maxRetries+1 times with doubling delays capped at maxRetryDelay.
// Reverts and context errors are returned immediately.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return false
	}
	return true
}
