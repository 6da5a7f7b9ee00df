package internal

import (
	"time"
)

// Tier is the subscription level governing the monthly creation cap and the
// custom short code privilege.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
)

// MonthlyLimitByTier is the number of link creations allowed per UTC calendar
// month for each tier.
var MonthlyLimitByTier = map[Tier]int{
	TierFree: 10,
	TierPro:  100,
}

// Subscription is the quota authority's answer for a single user.
type Subscription struct {
	UserID int64 `json:"user_id"`
	Tier   Tier  `json:"subscription_type"`
}

// Link is the canonical short-code-to-URL record, owned by the link store.
type Link struct {
	ID          int64  `gorm:"primaryKey;type:bigint"`
	OwnerUserID int64  `gorm:"index;not null"`
	ShortCode   string `gorm:"type:varchar(12);uniqueIndex;not null"`
	OriginalURL string `gorm:"type:text;not null"`
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Reflection mirrors link ownership on the analytics side. It is an
// eventually-consistent copy used only to authorize analytics reads, never a
// source of truth for link content.
type Reflection struct {
	ShortlinkID int64  `gorm:"primaryKey;type:bigint"`
	OwnerUserID int64  `gorm:"index:idx_reflections_owner_code;not null"`
	ShortCode   string `gorm:"type:varchar(12);index:idx_reflections_owner_code;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClickFact is one observed redirect resolution. Append-only.
type ClickFact struct {
	ID          int64  `gorm:"primaryKey;type:bigint"`
	ShortlinkID int64  `gorm:"index;not null"`
	ShortCode   string `gorm:"type:varchar(12);not null"`
	OwnerUserID int64  `gorm:"not null"`
	IPAddress   string `gorm:"type:text;not null"`
	UserAgent   *string
	ClickedAt   time.Time `gorm:"index;not null"`
}

// UserAccount backs the quota authority service.
type UserAccount struct {
	ID        int64  `gorm:"primaryKey;type:bigint"`
	Email     string `gorm:"type:text;uniqueIndex;not null"`
	Tier      Tier   `gorm:"type:varchar(8);not null;default:FREE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
