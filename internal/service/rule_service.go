package service

import (
	"context"
	"fmt"

	"advisorhub/internal/rules"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql"
	"advisorhub/pkg/store/mysql/model"
)

// defaultRules are seeded for new users, inactive until the user opts
// in. They cover the common automations without surprising anyone with
// unrequested actions.
var defaultRules = []string{
	"when gmail.message.received then create_task type=process_email priority=medium",
	"when calendar.event.created then log",
	"when hubspot.contact.creation then log",
}

// RuleService owns memory rule CRUD.
type RuleService struct {
	repo *mysql.RuleRepository
}

// NewRuleService creates a rule service.
func NewRuleService(repo *mysql.RuleRepository) *RuleService {
	return &RuleService{repo: repo}
}

// Create stores a new rule. The text must at least survive parsing,
// which only rejects blank input; everything else is stored verbatim
// and interpreted at evaluation time.
func (s *RuleService) Create(ctx context.Context, userID int64, ruleText string, priority int, isActive bool) (*model.MemoryRule, error) {
	if rules.ParseRule(ruleText) == nil {
		return nil, fmt.Errorf("rule text must not be empty")
	}

	rule := &model.MemoryRule{
		UserID:   userID,
		RuleText: ruleText,
		IsActive: isActive,
		Priority: priority,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Get returns one rule scoped to its owner, or nil.
func (s *RuleService) Get(ctx context.Context, userID, ruleID int64) (*model.MemoryRule, error) {
	return s.repo.Get(ctx, userID, ruleID)
}

// List returns all of a user's rules.
func (s *RuleService) List(ctx context.Context, userID int64) ([]*model.MemoryRule, error) {
	return s.repo.List(ctx, userID)
}

// Update edits a rule's text, priority or active flag.
func (s *RuleService) Update(ctx context.Context, userID, ruleID int64, ruleText *string, priority *int, isActive *bool) (*model.MemoryRule, error) {
	rule, err := s.repo.Get(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("rule %d not found", ruleID)
	}

	if ruleText != nil {
		if rules.ParseRule(*ruleText) == nil {
			return nil, fmt.Errorf("rule text must not be empty")
		}
		rule.RuleText = *ruleText
	}
	if priority != nil {
		rule.Priority = *priority
	}
	if isActive != nil {
		rule.IsActive = *isActive
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule scoped to its owner.
func (s *RuleService) Delete(ctx context.Context, userID, ruleID int64) error {
	return s.repo.Delete(ctx, userID, ruleID)
}

// CreateDefaults seeds the starter rules for a user. Existing rules are
// left alone; seeding twice only adds what is missing.
func (s *RuleService) CreateDefaults(ctx context.Context, userID int64) (int, error) {
	existing, err := s.repo.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, rule := range existing {
		have[rule.RuleText] = true
	}

	created := 0
	for _, text := range defaultRules {
		if have[text] {
			continue
		}
		rule := &model.MemoryRule{
			UserID:   userID,
			RuleText: text,
			IsActive: false,
		}
		if err := s.repo.Create(ctx, rule); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		logger.InfoCtx(ctx, "seeded %d default rules for user %d", created, userID)
	}
	return created, nil
}
