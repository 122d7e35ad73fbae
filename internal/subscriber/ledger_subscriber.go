package subscriber

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/shiptoday/nanochat/internal/domain"
	"github.com/shiptoday/nanochat/internal/eventbus"
	"github.com/shiptoday/nanochat/internal/model"
	"github.com/shiptoday/nanochat/internal/repository"
	"github.com/shiptoday/nanochat/internal/service/generator"
	"github.com/shiptoday/nanochat/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// maxErrorMsg 审计表中错误信息的最大长度
const maxErrorMsg = 1000

// LedgerSubscriber 把运行事件写入审计账本（generation_runs / task_outcomes）
// 账本只用于事后分析，写入失败不影响生成运行本身
type LedgerSubscriber struct {
	runRepo      repository.RunRepository
	outcomeRepo  repository.OutcomeRepository
	stateMachine *statemachine.RunStateMachine
}

func NewLedgerSubscriber(runRepo repository.RunRepository, outcomeRepo repository.OutcomeRepository) *LedgerSubscriber {
	return &LedgerSubscriber{
		runRepo:      runRepo,
		outcomeRepo:  outcomeRepo,
		stateMachine: statemachine.NewRunStateMachine(),
	}
}

func (s *LedgerSubscriber) Register(bus *eventbus.RunEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.RunEventStarted, s.handleRunStarted)
	bus.Subscribe(eventbus.RunEventTaskAccepted, s.handleTaskOutcome)
	bus.Subscribe(eventbus.RunEventTaskRejected, s.handleTaskOutcome)
	bus.Subscribe(eventbus.RunEventFinished, s.handleRunFinished)
}

// handleRunStarted 创建运行记录
func (s *LedgerSubscriber) handleRunStarted(ctx context.Context, event eventbus.RunEvent) error {
	run := &model.GenerationRun{
		RunID:       event.RunID,
		Model:       event.Model,
		Temperature: event.Temperature,
		NumTasks:    event.Total,
		NumWorkers:  event.Workers,
		OutputFile:  event.OutputFile,
		Status:      model.RunStatusRunning,
		StartedAt:   event.At,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	klog.V(6).Infof("运行记录已创建: runID=%s, tasks=%d, workers=%d", event.RunID, event.Total, event.Workers)
	return nil
}

// handleTaskOutcome 记录单个任务的终态
func (s *LedgerSubscriber) handleTaskOutcome(ctx context.Context, event eventbus.RunEvent) error {
	if event.Outcome == nil {
		return nil
	}
	o := event.Outcome
	row := &model.TaskOutcome{
		RunID:      event.RunID,
		TaskIndex:  o.Index,
		Status:     string(o.Status),
		Attempts:   o.Attempts,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Status == domain.OutcomeAccepted && o.Record != nil {
		row.MessageCount = o.Record.Len()
	}
	if o.Err != nil {
		row.ErrorKind = generator.ErrorKind(o.Err)
		row.ErrorMsg = truncate(o.Err.Error(), maxErrorMsg)
	}
	if err := s.outcomeRepo.Create(ctx, row); err != nil {
		return fmt.Errorf("create task outcome: runID=%s, idx=%d: %w", event.RunID, o.Index, err)
	}
	return nil
}

// handleRunFinished 更新运行的最终状态与计数
func (s *LedgerSubscriber) handleRunFinished(ctx context.Context, event eventbus.RunEvent) error {
	run, err := s.runRepo.Get(ctx, event.RunID)
	if err != nil {
		return fmt.Errorf("load run record: %w", err)
	}

	status := statemachine.FinalStatus(event.Canceled, event.Err)
	if err := s.stateMachine.Transition(statemachine.RunStatus(run.Status), status, event.RunID); err != nil {
		return err
	}

	errMsg := ""
	if event.Err != nil {
		errMsg = truncate(event.Err.Error(), maxErrorMsg)
	}
	if err := s.runRepo.Finish(ctx, event.RunID, string(status), event.Accepted, event.Rejected, errMsg); err != nil {
		return fmt.Errorf("finish run record: %w", err)
	}
	klog.V(6).Infof("运行记录已完成: runID=%s, status=%s, accepted=%d, rejected=%d", event.RunID, status, event.Accepted, event.Rejected)
	return nil
}

// truncate 截断到最多 n 字节，不拆分多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
