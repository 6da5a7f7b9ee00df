package analytics

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mgoulart/shortlinks/internal"
)

// GormStore implements ReflectionStore and ClickStore on the analytics
// database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Upsert writes the mirror row unconditionally on (shortlink_id) conflict.
func (s *GormStore) Upsert(ctx context.Context, reflection internal.Reflection) error {
	return s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "shortlink_id"}},
			UpdateAll: true,
		},
	).Create(&reflection).Error
}

// Delete is idempotent: deleting an absent row is not an error.
func (s *GormStore) Delete(ctx context.Context, shortlinkID int64) error {
	return s.db.WithContext(ctx).Delete(&internal.Reflection{}, shortlinkID).Error
}

func (s *GormStore) FindByOwnerAndCode(ctx context.Context, ownerID int64, code string) (*internal.Reflection, error) {
	var reflection internal.Reflection
	err := s.db.WithContext(ctx).
		Where("owner_user_id = ? AND short_code = ?", ownerID, code).
		First(&reflection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reflection, nil
}

func (s *GormStore) Append(ctx context.Context, fact internal.ClickFact) error {
	return s.db.WithContext(ctx).Create(&fact).Error
}

func (s *GormStore) CountByShortlink(ctx context.Context, shortlinkID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&internal.ClickFact{}).
		Where("shortlink_id = ?", shortlinkID).
		Count(&count).Error
	return count, err
}

func (s *GormStore) PageByShortlink(ctx context.Context, shortlinkID int64, limit, offset int) ([]internal.ClickFact, error) {
	var facts []internal.ClickFact
	err := s.db.WithContext(ctx).
		Where("shortlink_id = ?", shortlinkID).
		Order("clicked_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&facts).Error
	return facts, err
}
