package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// RunStatus 生成运行的状态，与 generation_runs.status 一致
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"   // 正在分发任务
	RunStatusCompleted RunStatus = "completed" // 全部任务到达终态
	RunStatusFailed    RunStatus = "failed"    // 存在拒绝且要求失败退出
	RunStatusCanceled  RunStatus = "canceled"  // 收到中断信号
)

// RunTransition 状态迁移
type RunTransition struct {
	From RunStatus
	To   RunStatus
}

// RunStateMachine 运行状态机：只允许 running 迁移到某个终态，终态不可再变
type RunStateMachine struct {
	allowedTransitions map[RunTransition]bool
}

func NewRunStateMachine() *RunStateMachine {
	sm := &RunStateMachine{
		allowedTransitions: make(map[RunTransition]bool),
	}

	transitions := []RunTransition{
		{RunStatusRunning, RunStatusCompleted},
		{RunStatusRunning, RunStatusFailed},
		{RunStatusRunning, RunStatusCanceled},
	}
	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}
	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *RunStateMachine) CanTransition(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[RunTransition{From: from, To: to}]
}

// Transition 校验迁移并记录日志
func (sm *RunStateMachine) Transition(from, to RunStatus, runID string) error {
	if !sm.CanTransition(from, to) {
		err := &InvalidStateTransitionError{From: string(from), To: string(to)}
		klog.V(6).Infof("运行状态迁移被拒绝: runID=%s, %s -> %s", runID, from, to)
		return err
	}
	klog.V(6).Infof("运行状态迁移成功: runID=%s, %s -> %s", runID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 是否为终态
func IsTerminal(status RunStatus) bool {
	return status == RunStatusCompleted || status == RunStatusFailed || status == RunStatusCanceled
}

// FinalStatus 根据运行结束时的情况决定终态
func FinalStatus(canceled bool, err error) RunStatus {
	switch {
	case canceled:
		return RunStatusCanceled
	case err != nil:
		return RunStatusFailed
	default:
		return RunStatusCompleted
	}
}
