package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/mx-space/presence/internal/models"
	"github.com/mx-space/presence/internal/modules/presence"
	"github.com/mx-space/presence/internal/pkg/jwt"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when a key has no matching user row.
var ErrUserNotFound = errors.New("user not found")

// Store resolves presence identities from the users table.
type Store struct {
	db     *gorm.DB
	signer *jwt.Signer
}

func NewStore(db *gorm.DB, signer *jwt.Signer) *Store {
	return &Store{db: db, signer: signer}
}

// ResolveIdentity loads the user whose ID is key.
func (s *Store) ResolveIdentity(ctx context.Context, key string) (*presence.Identity, error) {
	var user models.UserModel
	err := s.db.WithContext(ctx).Where("id = ?", key).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return toIdentity(&user), nil
}

// Authenticate verifies a signed token and resolves the user it names.
func (s *Store) Authenticate(ctx context.Context, token string) (*presence.Identity, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	return s.ResolveIdentity(ctx, claims.UserID)
}

func toIdentity(user *models.UserModel) *presence.Identity {
	return &presence.Identity{
		Key:      user.ID,
		Username: user.Username,
		Name:     user.Name,
		Avatar:   user.Avatar,
	}
}
