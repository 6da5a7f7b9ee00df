package shortlinks

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal"
)

// Tx is the view of the link store inside a provisioning critical section.
type Tx interface {
	CountCreatedInWindow(ctx context.Context, ownerID int64, start, end time.Time) (int64, error)
	CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error)
	Insert(ctx context.Context, link *internal.Link) error
}

// Store is the canonical link store. Lookups return (nil, nil) when no row
// matches; the service translates that to NotFound.
type Store interface {
	// WithOwnerLock runs fn inside one atomic unit while holding an exclusive
	// lock scoped to ownerID. Concurrent calls for the same owner serialize;
	// different owners do not contend. fn returning an error aborts the whole
	// unit.
	WithOwnerLock(ctx context.Context, ownerID int64, fn func(tx Tx) error) error

	FindByOwnerAndCode(ctx context.Context, ownerID int64, code string) (*internal.Link, error)
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]internal.Link, int64, error)
	CountCreatedInWindow(ctx context.Context, ownerID int64, start, end time.Time) (int64, error)
	CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error)
	Update(ctx context.Context, link *internal.Link) error
	Delete(ctx context.Context, link *internal.Link) error
}

// GormStore implements Store on postgres. The owner lock is a transaction
// scoped advisory lock keyed by the numeric owner id, so it serializes
// provisioning per user without any cross-user contention.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithOwnerLock(ctx context.Context, ownerID int64, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", ownerID).Error; err != nil {
			return err
		}
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) FindByOwnerAndCode(ctx context.Context, ownerID int64, code string) (*internal.Link, error) {
	var link internal.Link
	err := s.db.WithContext(ctx).
		Where("owner_user_id = ? AND short_code = ?", ownerID, code).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *GormStore) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]internal.Link, int64, error) {
	db := s.db.WithContext(ctx).Model(&internal.Link{}).Where("owner_user_id = ?", ownerID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var links []internal.Link
	if err := db.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&links).Error; err != nil {
		return nil, 0, err
	}

	return links, total, nil
}

func (s *GormStore) CountCreatedInWindow(ctx context.Context, ownerID int64, start, end time.Time) (int64, error) {
	return countCreatedInWindow(s.db.WithContext(ctx), ownerID, start, end)
}

func (s *GormStore) CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error) {
	return codeTaken(s.db.WithContext(ctx), code, excludeID)
}

func (s *GormStore) Update(ctx context.Context, link *internal.Link) error {
	return s.db.WithContext(ctx).Save(link).Error
}

func (s *GormStore) Delete(ctx context.Context, link *internal.Link) error {
	return s.db.WithContext(ctx).Delete(&internal.Link{}, link.ID).Error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) CountCreatedInWindow(ctx context.Context, ownerID int64, start, end time.Time) (int64, error) {
	return countCreatedInWindow(t.db.WithContext(ctx), ownerID, start, end)
}

func (t *gormTx) CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error) {
	return codeTaken(t.db.WithContext(ctx), code, excludeID)
}

func (t *gormTx) Insert(ctx context.Context, link *internal.Link) error {
	return t.db.WithContext(ctx).Create(link).Error
}

func countCreatedInWindow(db *gorm.DB, ownerID int64, start, end time.Time) (int64, error) {
	var count int64
	err := db.Model(&internal.Link{}).
		Where("owner_user_id = ? AND created_at >= ? AND created_at < ?", ownerID, start, end).
		Count(&count).Error
	return count, err
}

func codeTaken(db *gorm.DB, code string, excludeID int64) (bool, error) {
	query := db.Model(&internal.Link{}).Where("short_code = ?", code)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
