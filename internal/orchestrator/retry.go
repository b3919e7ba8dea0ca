package orchestrator

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/shaiso/agentflow/internal/domain"
)

// Значения задержки по умолчанию.
const (
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
)

// Стратегии задержки между попытками.
const (
	BackoffNone        = "none"
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// newBackoff строит задержку между попытками одного task.
// Возвращает nil, если задержка не нужна.
func newBackoff(p *domain.RetryPolicy) retry.Backoff {
	if p == nil {
		return nil
	}

	initial := time.Duration(p.InitialDelayMs) * time.Millisecond
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := time.Duration(p.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	switch p.Backoff {
	case BackoffFixed:
		return retry.NewConstant(initial)
	case BackoffExponential:
		return retry.WithCappedDuration(maxDelay, retry.NewExponential(initial))
	default:
		return nil
	}
}

// nextDelay возвращает следующую задержку.
func nextDelay(b retry.Backoff) time.Duration {
	if b == nil {
		return 0
	}
	d, stop := b.Next()
	if stop {
		return 0
	}
	return d
}

// sleep ждёт d или отмены контекста.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
