package generator

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shiptoday/nanochat/internal/domain"
	"github.com/shiptoday/nanochat/internal/eventbus"
	"github.com/shiptoday/nanochat/internal/metrics"
	"github.com/shiptoday/nanochat/internal/pkg/llm"
	"github.com/shiptoday/nanochat/internal/prompt"
	"github.com/shiptoday/nanochat/internal/service/orchestrator"
	"github.com/shiptoday/nanochat/internal/sink"
	"github.com/shiptoday/nanochat/internal/utils"
	"github.com/shiptoday/nanochat/internal/validator"
	"k8s.io/klog/v2"
)

// Options 一次运行的参数
type Options struct {
	NumConversations int
	NumWorkers       int
	Model            string
	Temperature      float64
	OutputPath       string
	FailOnRejection  bool
	Retry            orchestrator.RetryPolicy
}

// RunReport 运行结束后的汇总
type RunReport struct {
	RunID      string        `json:"run_id"`
	Total      int           `json:"total"`
	Stats      StatsSnapshot `json:"stats"`
	OutputPath string        `json:"output_path"`
	Duration   time.Duration `json:"duration"`
}

// Service 负责整个生成运行：创建任务、分发、统计并汇报结果
type Service struct {
	opts      Options
	template  *prompt.Template
	generator llm.Generator
	validator *validator.Validator
	format    *llm.ResponseFormat

	bus     *eventbus.RunEventBus
	metrics *metrics.Metrics

	stats   RunStats
	runID   atomic.Value
	running atomic.Bool
}

// NewService 创建生成服务
func NewService(opts Options, tpl *prompt.Template, gen llm.Generator, v *validator.Validator) *Service {
	if v == nil {
		v = validator.New(validator.Options{})
	}
	return &Service{
		opts:      opts,
		template:  tpl,
		generator: gen,
		validator: v,
		format:    llm.ConversationSchema(),
	}
}

// SetEventBus 设置运行事件总线
func (s *Service) SetEventBus(bus *eventbus.RunEventBus) {
	s.bus = bus
}

// SetMetrics 设置指标收集器
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Stats 返回当前计数快照，可在运行期间调用
func (s *Service) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// RunID 返回当前（或最近一次）运行的 ID，尚未运行时为空
func (s *Service) RunID() string {
	id, _ := s.runID.Load().(string)
	return id
}

// Running 是否有运行正在进行
func (s *Service) Running() bool {
	return s.running.Load()
}

// Total 返回本次运行的任务总数
func (s *Service) Total() int {
	return s.opts.NumConversations
}

// DryRun 只渲染一份示例提示词，不打开输出文件也不调用生成服务
func (s *Service) DryRun(w io.Writer) error {
	text, err := s.template.Preview()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "---- PROMPT (for inspection only) ----\n%s\n", text)
	return err
}

// Run 执行完整的生成运行
// 只有模板前置条件不满足或输出文件无法创建时返回错误且不分发任何任务；
// 单个任务的失败只计入拒绝数
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	if err := s.template.Check(); err != nil {
		return nil, fmt.Errorf("template precondition: %w", err)
	}

	out, err := sink.Open(s.opts.OutputPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := out.Close(); err != nil {
			klog.Errorf("关闭输出文件失败: %v", err)
		}
	}()

	dispatcher, err := orchestrator.NewDispatcher(s.opts.NumWorkers, s.opts.Retry)
	if err != nil {
		return nil, err
	}
	defer dispatcher.Release()
	if s.metrics != nil {
		dispatcher.SetStartHook(func(int) { s.metrics.TaskStarted() })
		s.metrics.RunStarted(s.opts.NumConversations, s.opts.NumWorkers)
	}

	s.running.Store(true)
	defer s.running.Store(false)
	s.stats.reset()
	runID := uuid.NewString()
	s.runID.Store(runID)
	start := time.Now()

	klog.Infof("Saving to %s", out.Path())
	klog.Infof("Generating %d conversations with %d workers... (run=%s)", s.opts.NumConversations, s.opts.NumWorkers, runID)
	s.publish(ctx, eventbus.RunEvent{
		Type:        eventbus.RunEventStarted,
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		Workers:     s.opts.NumWorkers,
		OutputFile:  out.Path(),
	})

	tasks := make([]int, s.opts.NumConversations)
	for i := range tasks {
		tasks[i] = i
	}
	dispatcher.Run(ctx, tasks, s.taskFunc(out), func(outcome domain.Outcome) {
		s.handleOutcome(ctx, outcome)
	})

	snapshot := s.stats.Snapshot()
	report := &RunReport{
		RunID:      runID,
		Total:      s.opts.NumConversations,
		Stats:      snapshot,
		OutputPath: out.Path(),
		Duration:   time.Since(start),
	}

	klog.Infof("Done! Successfully saved %d conversations to %s", snapshot.Accepted, out.Path())
	var runErr error
	if snapshot.Rejected > 0 {
		klog.Warningf("Encountered %d errors during generation: %s", snapshot.Rejected, utils.ToJSON(snapshot.RejectedByKind))
		if s.opts.FailOnRejection {
			runErr = fmt.Errorf("%w: %d of %d", ErrRejectionsPresent, snapshot.Rejected, s.opts.NumConversations)
		}
	}

	canceled := ctx.Err() != nil
	if canceled {
		klog.Warningf("Run %s was interrupted: %v", runID, ctx.Err())
	}
	s.publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventFinished, Err: runErr, Canceled: canceled})
	return report, runErr
}

// taskFunc 单个任务：渲染 -> 生成 -> 校验 -> 追加写入
func (s *Service) taskFunc(out *sink.JSONLSink) orchestrator.TaskFunc {
	return func(ctx context.Context, idx int) (*domain.ConversationRecord, error) {
		text, err := s.template.ForTask(idx)
		if err != nil {
			return nil, fmt.Errorf("render prompt: %w", err)
		}

		raw, err := s.generator.Generate(ctx, text, s.format, s.opts.Temperature)
		if err != nil {
			return nil, err
		}

		record, err := s.validator.Validate(raw)
		if err != nil {
			return nil, err
		}

		if err := out.Append(record); err != nil {
			return nil, err
		}
		klog.V(6).Infof("任务完成: idx=%d, messages=%d", idx, record.Len())
		return record, nil
	}
}

// handleOutcome 记录任务终态：计数、进度日志、指标与事件
func (s *Service) handleOutcome(ctx context.Context, outcome domain.Outcome) {
	kind := ErrorKind(outcome.Err)
	accepted, rejected := s.stats.record(outcome, kind)

	eventType := eventbus.RunEventTaskAccepted
	if outcome.Status == domain.OutcomeAccepted {
		klog.Infof("✓ Saved conversation %d/%d", accepted, s.opts.NumConversations)
	} else {
		eventType = eventbus.RunEventTaskRejected
		klog.Warningf("✗ Error generating conversation %d (%s): %v", outcome.Index, kind, outcome.Err)
	}

	if s.metrics != nil {
		s.metrics.TaskFinished(string(outcome.Status), kind, outcome.Attempts, outcome.Duration)
	}

	s.publish(ctx, eventbus.RunEvent{
		Type:     eventType,
		Outcome:  &outcome,
		Accepted: accepted,
		Rejected: rejected,
	})
}

// publish 发布事件，订阅者出错只记录日志
func (s *Service) publish(ctx context.Context, event eventbus.RunEvent) {
	if s.bus == nil {
		return
	}
	event.RunID = s.RunID()
	event.Total = s.opts.NumConversations
	event.At = time.Now()
	if event.Type == eventbus.RunEventFinished {
		snapshot := s.stats.Snapshot()
		event.Accepted = snapshot.Accepted
		event.Rejected = snapshot.Rejected
	}
	// 事件订阅者不受运行上下文取消影响，保证审计记录完整
	if err := s.bus.Publish(context.WithoutCancel(ctx), event); err != nil {
		klog.Warningf("运行事件处理失败: type=%s, err=%v", event.Type, err)
	}
}
