package model

import (
	"time"
)

// 运行状态
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// GenerationRun 一次数据生成运行的审计记录
type GenerationRun struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	RunID       string     `json:"run_id" gorm:"size:36;uniqueIndex;not null"`
	Model       string     `json:"model" gorm:"size:255;not null"`
	Temperature float64    `json:"temperature"`
	NumTasks    int        `json:"num_tasks"`
	NumWorkers  int        `json:"num_workers"`
	OutputFile  string     `json:"output_file" gorm:"size:1000"`
	Status      string     `json:"status" gorm:"size:20;default:running;index"` // running, completed, failed, canceled
	Accepted    int        `json:"accepted" gorm:"default:0"`
	Rejected    int        `json:"rejected" gorm:"default:0"`
	ErrorMsg    string     `json:"error_msg" gorm:"size:1000"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (GenerationRun) TableName() string {
	return "generation_runs"
}

// TaskOutcome 单个任务的终态，仅用于审计，不用于断点续跑
type TaskOutcome struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	RunID        string    `json:"run_id" gorm:"size:36;index:idx_task_outcomes_run;not null"`
	TaskIndex    int       `json:"task_index" gorm:"index:idx_task_outcomes_run"`
	Status       string    `json:"status" gorm:"size:20;not null"` // accepted, rejected
	ErrorKind    string    `json:"error_kind" gorm:"size:64;index"`
	ErrorMsg     string    `json:"error_msg" gorm:"size:1000"`
	Attempts     int       `json:"attempts"`
	MessageCount int       `json:"message_count"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (TaskOutcome) TableName() string {
	return "task_outcomes"
}
