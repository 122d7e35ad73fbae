package repository

import (
	"context"

	"github.com/shiptoday/nanochat/internal/model"
	"gorm.io/gorm"
)

type outcomeRepository struct {
	db *gorm.DB
}

// NewOutcomeRepository 创建任务结果仓储
func NewOutcomeRepository(db *gorm.DB) OutcomeRepository {
	return &outcomeRepository{db: db}
}

// Create 新增任务结果
func (r *outcomeRepository) Create(ctx context.Context, outcome *model.TaskOutcome) error {
	return r.db.WithContext(ctx).Create(outcome).Error
}

// GetByRunID 按任务下标返回某次运行的全部结果
func (r *outcomeRepository) GetByRunID(ctx context.Context, runID string) ([]model.TaskOutcome, error) {
	var outcomes []model.TaskOutcome
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("task_index ASC").
		Find(&outcomes).Error
	return outcomes, err
}

// CountByKind 统计某次运行中各类拒绝原因的数量
func (r *outcomeRepository) CountByKind(ctx context.Context, runID string) (map[string]int64, error) {
	var rows []struct {
		ErrorKind string
		Count     int64
	}
	err := r.db.WithContext(ctx).Model(&model.TaskOutcome{}).
		Select("error_kind, count(*) as count").
		Where("run_id = ? AND status = ?", runID, "rejected").
		Group("error_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ErrorKind] = row.Count
	}
	return counts, nil
}
