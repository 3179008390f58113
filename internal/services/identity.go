package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"upkeep-bknd/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrUserNotFound = errors.New("user not found")

// IdentityService reads accounts owned by the identity service. Tokens
// are issued there; this service only checks they are still current.
type IdentityService struct {
	db bun.IDB
}

func NewIdentityService(db bun.IDB) *IdentityService {
	return &IdentityService{db: db}
}

func (s *IdentityService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	u := new(models.User)
	err = s.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CheckTokenVersion reports whether tokenVersion is the user's current
// one. Bumping the version on the account revokes every older token.
func (s *IdentityService) CheckTokenVersion(ctx context.Context, userID string, tokenVersion int) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.TokenVersion == tokenVersion, nil
}
