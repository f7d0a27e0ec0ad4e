package mysql

import (
	"context"
	"errors"
	"fmt"

	"advisorhub/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// UserRepository handles user lookups for the task subsystem
type UserRepository struct {
	ds *Datastore
}

// NewUserRepository creates a new user repository
func NewUserRepository(ds *Datastore) *UserRepository {
	return &UserRepository{ds: ds}
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.ds.DB(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email address. Webhook handlers use this
// to route external events to their owner.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.ds.DB(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetByHubspotPortal retrieves the user owning a HubSpot portal.
func (r *UserRepository) GetByHubspotPortal(ctx context.Context, portalID string) (*model.User, error) {
	var user model.User
	err := r.ds.DB(ctx).Where("hubspot_portal_id = ?", portalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by portal: %w", err)
	}
	return &user, nil
}
