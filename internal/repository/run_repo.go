package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shiptoday/nanochat/internal/model"
	"gorm.io/gorm"
)

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 创建运行记录仓储
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

// Create 新增运行记录
func (r *runRepository) Create(ctx context.Context, run *model.GenerationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Get 根据 run_id 查询
func (r *runRepository) Get(ctx context.Context, runID string) (*model.GenerationRun, error) {
	var run model.GenerationRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// Finish 写入最终状态与计数
func (r *runRepository) Finish(ctx context.Context, runID, status string, accepted, rejected int, errMsg string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.GenerationRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"status":      status,
			"accepted":    accepted,
			"rejected":    rejected,
			"error_msg":   errMsg,
			"finished_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List 按开始时间倒序返回最近的运行
func (r *runRepository) List(ctx context.Context, limit int) ([]model.GenerationRun, error) {
	var runs []model.GenerationRun
	query := r.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}
