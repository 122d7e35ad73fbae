package repository

import (
	"context"
	"errors"

	"github.com/shiptoday/nanochat/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type RunRepository interface {
	Create(ctx context.Context, run *model.GenerationRun) error
	Get(ctx context.Context, runID string) (*model.GenerationRun, error)
	Finish(ctx context.Context, runID, status string, accepted, rejected int, errMsg string) error
	List(ctx context.Context, limit int) ([]model.GenerationRun, error)
}

type OutcomeRepository interface {
	Create(ctx context.Context, outcome *model.TaskOutcome) error
	GetByRunID(ctx context.Context, runID string) ([]model.TaskOutcome, error)
	CountByKind(ctx context.Context, runID string) (map[string]int64, error)
}
