package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"advisorhub/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// RuleRepository handles memory rule persistence in MySQL
type RuleRepository struct {
	ds *Datastore
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(ds *Datastore) *RuleRepository {
	return &RuleRepository{ds: ds}
}

// Create creates a new memory rule
func (r *RuleRepository) Create(ctx context.Context, rule *model.MemoryRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if err := r.ds.DB(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID scoped to its owner
func (r *RuleRepository) Get(ctx context.Context, userID, ruleID int64) (*model.MemoryRule, error) {
	var rule model.MemoryRule
	err := r.ds.DB(ctx).Where("id = ? AND user_id = ?", ruleID, userID).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// ListActive retrieves the user's active rules, highest priority first.
// The evaluator consumes these read-only.
func (r *RuleRepository) ListActive(ctx context.Context, userID int64) ([]*model.MemoryRule, error) {
	var rules []*model.MemoryRule
	err := r.ds.DB(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	return rules, nil
}

// List retrieves all rules for a user
func (r *RuleRepository) List(ctx context.Context, userID int64) ([]*model.MemoryRule, error) {
	var rules []*model.MemoryRule
	err := r.ds.DB(ctx).
		Where("user_id = ?", userID).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// Update persists edits to an existing rule
func (r *RuleRepository) Update(ctx context.Context, rule *model.MemoryRule) error {
	rule.UpdatedAt = time.Now().UTC()
	if err := r.ds.DB(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// Delete removes a rule scoped to its owner
func (r *RuleRepository) Delete(ctx context.Context, userID, ruleID int64) error {
	res := r.ds.DB(ctx).Where("id = ? AND user_id = ?", ruleID, userID).Delete(&model.MemoryRule{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule %d not found", ruleID)
	}
	return nil
}

// MarkTriggered stamps last_triggered_at after a rule's action executed.
func (r *RuleRepository) MarkTriggered(ctx context.Context, ruleID int64) error {
	now := time.Now().UTC()
	return r.ds.DB(ctx).Model(&model.MemoryRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"last_triggered_at": now,
			"updated_at":        now,
		}).Error
}
