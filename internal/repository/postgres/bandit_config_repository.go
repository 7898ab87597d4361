package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replyBandit/business/bandit"
	"replyBandit/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type explorationRow struct {
	Variant    string    `gorm:"column:variant;primaryKey"`
	Alpha      float64   `gorm:"column:alpha"`
	Epsilon    float64   `gorm:"column:epsilon"`
	PriorScale float64   `gorm:"column:prior_scale"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (explorationRow) TableName() string {
	return "bandit_exploration"
}

type BanditConfigRepository struct {
	DB *gorm.DB
}

var _ bandit.ExplorationRepository = (*BanditConfigRepository)(nil)

func NewBanditConfigRepository(db *gorm.DB) *BanditConfigRepository {
	return &BanditConfigRepository{DB: db}
}

func (r *BanditConfigRepository) GetExploration(ctx context.Context, variant domain.PolicyVariant) (domain.ExplorationConfig, bool, error) {
	var row explorationRow

	err := r.DB.WithContext(ctx).
		Where("variant = ?", string(variant)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ExplorationConfig{}, false, nil
	}
	if err != nil {
		return domain.ExplorationConfig{}, false, fmt.Errorf("failed to query bandit_exploration: %w", err)
	}

	return domain.ExplorationConfig{
		Alpha:      row.Alpha,
		Epsilon:    row.Epsilon,
		PriorScale: row.PriorScale,
	}, true, nil
}

func (r *BanditConfigRepository) UpsertExploration(ctx context.Context, variant domain.PolicyVariant, cfg domain.ExplorationConfig) error {
	row := explorationRow{
		Variant:    string(variant),
		Alpha:      cfg.Alpha,
		Epsilon:    cfg.Epsilon,
		PriorScale: cfg.PriorScale,
		UpdatedAt:  time.Now().UTC(),
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "variant"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"alpha",
				"epsilon",
				"prior_scale",
				"updated_at",
			}),
		}).
		Create(&row).Error
}
