package tokenref

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// Store reads the token reference table from postgres.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("tokenref: nil db handle")
	}
	return &Store{db: db}, nil
}

// ActiveTokens loads every active instrument.
func (s *Store) ActiveTokens(ctx context.Context) ([]Token, error) {
	var tokens []Token
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "query tokens")
	}
	return tokens, nil
}
