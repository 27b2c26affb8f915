package github

import (
	"context"
	"errors"
	"time"

	"codegen-app/internal/domain/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Link stores t, replacing any previous link for the same user.
func (s *Store) Link(ctx context.Context, t *Token) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token_sealed", "token_type", "scope", "username", "created_at", "updated_at"}),
	}).Create(t).Error
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "Failed to save GitHub link", err)
	}
	return nil
}

// Get returns the user's link, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID string) (*Token, error) {
	var t Token
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load GitHub link", err)
	}
	return &t, nil
}

func (s *Store) Unlink(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Token{}).Error; err != nil {
		return apperr.Wrap(apperr.KindUpstream, "Failed to remove GitHub link", err)
	}
	return nil
}
