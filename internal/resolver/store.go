package resolver

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal"
)

// GormLinkSource reads links by code only. Resolution is public, so there is
// no owner scoping here.
type GormLinkSource struct {
	db *gorm.DB
}

func NewGormLinkSource(db *gorm.DB) *GormLinkSource {
	return &GormLinkSource{db: db}
}

func (s *GormLinkSource) FindByCode(ctx context.Context, code string) (*internal.Link, error) {
	var link internal.Link
	err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}
