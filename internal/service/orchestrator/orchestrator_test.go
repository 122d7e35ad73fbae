package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shiptoday/nanochat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errBoom = errors.New("boom")

type collector struct {
	mutex    sync.Mutex
	outcomes map[int]domain.Outcome
	calls    int
}

func newCollector() *collector {
	return &collector{outcomes: make(map[int]domain.Outcome)}
}

func (c *collector) handle(o domain.Outcome) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.calls++
	c.outcomes[o.Index] = o
}

func okRecord() *domain.ConversationRecord {
	return &domain.ConversationRecord{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}
}

func tasks(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newDispatcher(t *testing.T, workers int, retry RetryPolicy) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(workers, retry)
	require.NoError(t, err)
	return d
}

func TestNewDispatcherRejectsZeroWorkers(t *testing.T) {
	_, err := NewDispatcher(0, NoRetry())
	assert.Error(t, err)
}

func TestRunAllSucceed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newDispatcher(t, 3, NoRetry())
	c := newCollector()
	d.Run(context.Background(), tasks(10), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		return okRecord(), nil
	}, c.handle)
	d.Release()

	assert.Equal(t, 10, c.calls)
	for i := 0; i < 10; i++ {
		o, ok := c.outcomes[i]
		require.True(t, ok, "missing outcome %d", i)
		assert.Equal(t, domain.OutcomeAccepted, o.Status)
		assert.Equal(t, 1, o.Attempts)
	}
}

// 并发数不超过 W
func TestRunBoundsConcurrency(t *testing.T) {
	d := newDispatcher(t, 3, NoRetry())
	defer d.Release()

	var current, peak atomic.Int32
	c := newCollector()
	d.Run(context.Background(), tasks(12), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return okRecord(), nil
	}, c.handle)

	assert.Equal(t, 12, c.calls)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 0, d.InFlight())
}

// 单个任务失败不影响其他任务
func TestRunIsolatesFailures(t *testing.T) {
	d := newDispatcher(t, 2, NoRetry())
	defer d.Release()

	c := newCollector()
	d.Run(context.Background(), tasks(5), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		if idx == 2 {
			return nil, errBoom
		}
		return okRecord(), nil
	}, c.handle)

	require.Equal(t, 5, c.calls)
	assert.Equal(t, domain.OutcomeRejected, c.outcomes[2].Status)
	assert.ErrorIs(t, c.outcomes[2].Err, errBoom)
	for _, idx := range []int{0, 1, 3, 4} {
		assert.Equal(t, domain.OutcomeAccepted, c.outcomes[idx].Status)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	d := newDispatcher(t, 2, NoRetry())
	defer d.Release()

	c := newCollector()
	d.Run(context.Background(), tasks(4), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		if idx == 1 {
			panic("bad response")
		}
		return okRecord(), nil
	}, c.handle)

	require.Equal(t, 4, c.calls)
	assert.ErrorIs(t, c.outcomes[1].Err, ErrTaskPanicked)
	assert.Equal(t, domain.OutcomeAccepted, c.outcomes[3].Status)
	assert.Equal(t, 0, d.InFlight())
}

func TestRunNoRetryByDefault(t *testing.T) {
	d := newDispatcher(t, 1, RetryPolicy{MaxAttempts: 3})
	defer d.Release()

	var calls atomic.Int32
	c := newCollector()
	d.Run(context.Background(), tasks(1), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		calls.Add(1)
		return nil, errBoom
	}, c.handle)

	assert.Equal(t, int32(1), calls.Load(), "Retryable 为空时不应重试")
	assert.Equal(t, 1, c.outcomes[0].Attempts)
}

func TestRunRetriesTransient(t *testing.T) {
	d := newDispatcher(t, 1, RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errBoom) },
	})
	defer d.Release()

	var calls atomic.Int32
	c := newCollector()
	d.Run(context.Background(), tasks(1), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		if calls.Add(1) < 3 {
			return nil, errBoom
		}
		return okRecord(), nil
	}, c.handle)

	assert.Equal(t, domain.OutcomeAccepted, c.outcomes[0].Status)
	assert.Equal(t, 3, c.outcomes[0].Attempts)
}

func TestRunRetryGivesUp(t *testing.T) {
	d := newDispatcher(t, 1, RetryPolicy{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		Retryable:   func(error) bool { return true },
	})
	defer d.Release()

	c := newCollector()
	d.Run(context.Background(), tasks(1), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		return nil, errBoom
	}, c.handle)

	assert.Equal(t, domain.OutcomeRejected, c.outcomes[0].Status)
	assert.Equal(t, 2, c.outcomes[0].Attempts)
}

func TestRunAfterRelease(t *testing.T) {
	d := newDispatcher(t, 1, NoRetry())
	d.Release()

	c := newCollector()
	d.Run(context.Background(), tasks(3), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		return okRecord(), nil
	}, c.handle)

	require.Equal(t, 3, c.calls)
	for _, o := range c.outcomes {
		assert.ErrorIs(t, o.Err, ErrDispatcherReleased)
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.backoff(1, errBoom))
	assert.Equal(t, 400*time.Millisecond, p.backoff(3, errBoom))
	assert.Equal(t, time.Second, p.backoff(10, errBoom))
}

func TestBackoffHint(t *testing.T) {
	p := RetryPolicy{
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Second,
		Hint: func(err error) time.Duration {
			if errors.Is(err, errBoom) {
				return 500 * time.Millisecond
			}
			return 0
		},
	}
	assert.Equal(t, 500*time.Millisecond, p.backoff(1, errBoom))
	assert.Equal(t, 100*time.Millisecond, p.backoff(1, errors.New("other")))
	assert.Equal(t, 800*time.Millisecond, p.backoff(4, errBoom))

	p.Hint = func(error) time.Duration { return time.Hour }
	assert.Equal(t, time.Second, p.backoff(1, errBoom))
}

func TestRunStartHook(t *testing.T) {
	d := newDispatcher(t, 2, NoRetry())
	defer d.Release()

	var started atomic.Int32
	d.SetStartHook(func(idx int) {
		started.Add(1)
		if idx == 1 {
			panic("hook failure")
		}
	})

	c := newCollector()
	d.Run(context.Background(), tasks(4), func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		return okRecord(), nil
	}, c.handle)

	assert.Equal(t, int32(4), started.Load())
	require.Equal(t, 4, c.calls)
	assert.ErrorIs(t, c.outcomes[1].Err, ErrTaskPanicked)
	assert.Equal(t, domain.OutcomeAccepted, c.outcomes[0].Status)
	assert.Equal(t, 0, d.InFlight())
}
