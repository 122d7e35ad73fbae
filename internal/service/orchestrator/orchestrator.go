package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shiptoday/nanochat/internal/domain"
	"k8s.io/klog/v2"
)

// -----------------------------
// 任务定义
// -----------------------------

// TaskFunc 单个任务的执行体：渲染提示词 -> 调用生成服务 -> 校验 -> 持久化
type TaskFunc func(ctx context.Context, idx int) (*domain.ConversationRecord, error)

// OutcomeHandler 每个任务到达终态后回调一次，可能在多个 worker 上并发调用
type OutcomeHandler func(outcome domain.Outcome)

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrDispatcherReleased = errors.New("dispatcher is released")
	ErrTaskPanicked       = errors.New("task panicked")
)

// -----------------------------
// 重试策略
// -----------------------------

// RetryPolicy 单个任务内部的重试策略
// MaxAttempts 为 1 时不重试；Retryable 为空时任何错误都不重试
// Hint 返回服务端建议的等待时间，大于指数退避时采用，仍受 MaxBackoff 限制
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Retryable   func(error) bool
	Hint        func(error) time.Duration
}

// NoRetry 默认策略：每个任务只执行一次
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) backoff(attempt int, err error) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	backoff := base << (attempt - 1)
	if p.Hint != nil {
		if hint := p.Hint(err); hint > backoff {
			backoff = hint
		}
	}
	if p.MaxBackoff > 0 && (backoff > p.MaxBackoff || backoff <= 0) {
		backoff = p.MaxBackoff
	}
	return backoff
}

// -----------------------------
// Dispatcher
// -----------------------------

// Dispatcher 固定大小的协程池，最多 W 个任务同时执行
// 任务之间相互隔离：一个任务的错误或 panic 只影响它自己的结果
type Dispatcher struct {
	pool     *ants.Pool
	workers  int
	retry    RetryPolicy
	inFlight atomic.Int32
	onStart  func(idx int)
}

// NewDispatcher 创建并发上限为 workers 的调度器
func NewDispatcher(workers int, retry RetryPolicy) (*Dispatcher, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", workers)
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(time.Minute),
		ants.WithPanicHandler(func(p any) {
			klog.Errorf("worker panic recovered: %v", p)
		}),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}

	return &Dispatcher{
		pool:    pool,
		workers: workers,
		retry:   retry,
	}, nil
}

// Workers 返回并发上限
func (d *Dispatcher) Workers() int {
	return d.workers
}

// SetStartHook 设置任务开始执行时的回调
func (d *Dispatcher) SetStartHook(hook func(idx int)) {
	d.onStart = hook
}

// InFlight 返回正在执行的任务数
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Run 提交全部任务并阻塞到每个任务都产生终态结果
// 完成顺序不做保证；onDone 对每个任务恰好调用一次
func (d *Dispatcher) Run(ctx context.Context, tasks []int, fn TaskFunc, onDone OutcomeHandler) {
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for _, idx := range tasks {
		err := d.pool.Submit(func() {
			defer wg.Done()
			onDone(d.execute(ctx, idx, fn))
		})
		if err != nil {
			klog.Errorf("提交任务到协程池失败: idx=%d, err=%v", idx, err)
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrDispatcherReleased
			}
			onDone(domain.Rejected(idx, fmt.Errorf("submit task: %w", err)))
			wg.Done()
		}
	}

	wg.Wait()
}

// execute 执行单个任务，按策略重试，panic 转换为拒绝结果
func (d *Dispatcher) execute(ctx context.Context, idx int, fn TaskFunc) (outcome domain.Outcome) {
	d.inFlight.Add(1)
	start := time.Now()
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Task panic recovered: idx=%d, err=%v", idx, r)
			outcome = domain.Rejected(idx, fmt.Errorf("%w: %v", ErrTaskPanicked, r))
		}
		outcome.Attempts = attempts
		outcome.Duration = time.Since(start)
		d.inFlight.Add(-1)
	}()

	if d.onStart != nil {
		d.onStart(idx)
	}

	for {
		attempts++
		record, err := fn(ctx, idx)
		if err == nil {
			return domain.Accepted(idx, record)
		}

		if attempts >= d.retry.MaxAttempts || d.retry.Retryable == nil || !d.retry.Retryable(err) {
			return domain.Rejected(idx, err)
		}

		backoff := d.retry.backoff(attempts, err)
		klog.Warningf("任务重试: idx=%d, attempt=%d/%d, err=%v, backoff=%v",
			idx, attempts, d.retry.MaxAttempts, err, backoff)

		select {
		case <-ctx.Done():
			klog.Warningf("任务被取消: idx=%d", idx)
			return domain.Rejected(idx, err)
		case <-time.After(backoff):
		}
	}
}

// Release 关闭协程池并等待正在执行的任务退出
func (d *Dispatcher) Release() {
	if err := d.pool.ReleaseTimeout(10 * time.Second); err != nil {
		klog.Warningf("协程池释放超时: %v", err)
	}
}
