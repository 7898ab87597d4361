package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"replyBandit/business/bandit"
	"replyBandit/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BanditRepository struct {
	DB *gorm.DB
}

var (
	_ bandit.DecisionLog       = (*BanditRepository)(nil)
	_ bandit.DecisionLogReader = (*BanditRepository)(nil)
)

func NewBanditRepository(db *gorm.DB) *BanditRepository {
	return &BanditRepository{DB: db}
}

// ---- Rows ----

type decisionRow struct {
	TurnID      string         `gorm:"column:turn_id;primaryKey"`
	SessionID   string         `gorm:"column:session_id;index"`
	ContextHash string         `gorm:"column:context_hash"`
	Candidates  datatypes.JSON `gorm:"column:candidates;type:jsonb"`
	ChosenIndex int            `gorm:"column:chosen_index"`
	ChosenArm   int            `gorm:"column:chosen_arm"`
	Propensity  float64        `gorm:"column:propensity"`
	Explored    bool           `gorm:"column:explored"`
	Variant     string         `gorm:"column:variant"`
	CreatedAt   time.Time      `gorm:"column:created_at;index"`
}

func (decisionRow) TableName() string {
	return "bandit_decisions"
}

type feedbackRow struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	TurnID        string    `gorm:"column:turn_id;index"`
	ArmIndex      int       `gorm:"column:arm_index"`
	Reward        float64   `gorm:"column:reward"`
	AppliedReward *float64  `gorm:"column:applied_reward"`
	ReceivedAt    time.Time `gorm:"column:received_at"`
}

func (feedbackRow) TableName() string {
	return "bandit_feedback"
}

// AutoMigrate creates the decision, feedback and exploration tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&decisionRow{}, &feedbackRow{}, &explorationRow{})
}

func toDecisionRow(rec domain.DecisionRecord) (decisionRow, error) {
	raw, err := json.Marshal(rec.Candidates)
	if err != nil {
		return decisionRow{}, fmt.Errorf("failed to marshal candidates: %w", err)
	}
	return decisionRow{
		TurnID:      rec.TurnID,
		SessionID:   rec.SessionID,
		ContextHash: rec.ContextHash,
		Candidates:  datatypes.JSON(raw),
		ChosenIndex: rec.ChosenIndex,
		ChosenArm:   rec.ChosenArm,
		Propensity:  rec.Propensity,
		Explored:    rec.Explored,
		Variant:     string(rec.Variant),
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func (r decisionRow) toDomain() (domain.DecisionRecord, error) {
	rec := domain.DecisionRecord{
		TurnID:      r.TurnID,
		SessionID:   r.SessionID,
		ContextHash: r.ContextHash,
		ChosenIndex: r.ChosenIndex,
		ChosenArm:   r.ChosenArm,
		Propensity:  r.Propensity,
		Explored:    r.Explored,
		Variant:     domain.PolicyVariant(r.Variant),
		CreatedAt:   r.CreatedAt,
	}
	if len(r.Candidates) > 0 {
		if err := json.Unmarshal(r.Candidates, &rec.Candidates); err != nil {
			return domain.DecisionRecord{}, fmt.Errorf("failed to unmarshal candidates: %w", err)
		}
	}
	return rec, nil
}

// ---- Decisions ----

func (r *BanditRepository) SaveDecision(ctx context.Context, rec domain.DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row, err := toDecisionRow(rec)
	if err != nil {
		return err
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: turn %q already logged", domain.ErrInvalidInput, rec.TurnID)
		}
		return fmt.Errorf("failed to save bandit decision: %w", err)
	}
	return nil
}

func (r *BanditRepository) GetDecision(ctx context.Context, turnID string) (domain.DecisionRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.DecisionRecord{}, false, fmt.Errorf("context error: %w", err)
	}

	var row decisionRow
	err := r.DB.WithContext(ctx).First(&row, "turn_id = ?", turnID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DecisionRecord{}, false, nil
	}
	if err != nil {
		return domain.DecisionRecord{}, false, fmt.Errorf("failed to query bandit_decisions: %w", err)
	}

	rec, err := row.toDomain()
	if err != nil {
		return domain.DecisionRecord{}, false, err
	}
	return rec, true, nil
}

// ListDecisions returns the newest limit decisions, oldest first.
func (r *BanditRepository) ListDecisions(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []decisionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list bandit_decisions: %w", err)
	}

	out := make([]domain.DecisionRecord, len(rows))
	for i, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[len(rows)-1-i] = rec
	}
	return out, nil
}

// ---- Feedback ----

func (r *BanditRepository) SaveFeedback(ctx context.Context, fb domain.FeedbackRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row := feedbackRow{
		TurnID:        fb.TurnID,
		ArmIndex:      fb.ArmIndex,
		Reward:        fb.Reward,
		AppliedReward: fb.AppliedReward,
		ReceivedAt:    fb.ReceivedAt,
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save bandit feedback: %w", err)
	}
	return nil
}

func (r *BanditRepository) ListFeedback(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []feedbackRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list bandit_feedback: %w", err)
	}

	out := make([]domain.FeedbackRecord, len(rows))
	for i, row := range rows {
		out[i] = domain.FeedbackRecord{
			TurnID:        row.TurnID,
			ArmIndex:      row.ArmIndex,
			Reward:        row.Reward,
			AppliedReward: row.AppliedReward,
			ReceivedAt:    row.ReceivedAt,
		}
	}
	return out, nil
}
