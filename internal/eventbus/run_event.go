package eventbus

import (
	"time"

	"github.com/shiptoday/nanochat/internal/domain"
)

type RunEventType string

const (
	RunEventStarted      RunEventType = "RunStarted"
	RunEventTaskAccepted RunEventType = "TaskAccepted"
	RunEventTaskRejected RunEventType = "TaskRejected"
	RunEventFinished     RunEventType = "RunFinished"
)

// RunEvent 一次生成运行中的生命周期事件
type RunEvent struct {
	Type     RunEventType
	RunID    string
	Total    int
	Outcome  *domain.Outcome // 仅任务事件
	Accepted int             // 事件发生时的累计值
	Rejected int
	At       time.Time

	// 以下字段仅 RunStarted 携带
	Model       string
	Temperature float64
	Workers     int
	OutputFile  string

	// 仅 RunFinished 携带
	Err      error
	Canceled bool
}

func (e RunEvent) Kind() RunEventType {
	return e.Type
}

type RunEventHandler = Handler[RunEvent]
type RunEventBus = Bus[RunEventType, RunEvent]

func NewRunEventBus() *RunEventBus {
	return NewBus[RunEventType, RunEvent]()
}
