package quota

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
)

// Authority is the server side of the subscription contract: it owns each
// user's tier.
type Authority struct {
	db *gorm.DB
}

func NewAuthority(db *gorm.DB) *Authority {
	return &Authority{db: db}
}

func (a *Authority) GetSubscription(ctx context.Context, userID int64) (internal.Subscription, error) {
	var user internal.UserAccount
	err := a.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return internal.Subscription{}, apperrors.NotFound("User not found.")
	}
	if err != nil {
		return internal.Subscription{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	return internal.Subscription{UserID: user.ID, Tier: user.Tier}, nil
}

// CreateUser registers a FREE-tier user.
func (a *Authority) CreateUser(ctx context.Context, email string) (internal.UserAccount, error) {
	if email == "" {
		return internal.UserAccount{}, apperrors.InvalidArgument("Email is required.")
	}

	user := internal.UserAccount{Email: email, Tier: internal.TierFree}
	if err := a.db.WithContext(ctx).Create(&user).Error; err != nil {
		return internal.UserAccount{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SetTier flips a user's subscription tier.
func (a *Authority) SetTier(ctx context.Context, userID int64, tier internal.Tier) (internal.Subscription, error) {
	var user internal.UserAccount
	err := a.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return internal.Subscription{}, apperrors.NotFound("User not found.")
	}
	if err != nil {
		return internal.Subscription{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	user.Tier = tier
	if err := a.db.WithContext(ctx).Save(&user).Error; err != nil {
		return internal.Subscription{}, fmt.Errorf("update user %d: %w", userID, err)
	}

	return internal.Subscription{UserID: user.ID, Tier: user.Tier}, nil
}
