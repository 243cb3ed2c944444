// Package account handles login sessions. User rows themselves are
// ordinary versioned content saved through the orchestrator; this package
// only verifies credentials and manages access tokens.
package account

import (
	"context"
	defError "errors"
	"time"

	"ledger-cms/auth"
	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/redis"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 3 * 24 * time.Hour

type Service interface {
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	Logout(ctx context.Context, token string) error
}

type DefaultService struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) Service {
	return &DefaultService{db: db}
}

// Login verifies the credentials and issues an access token tracked in
// Redis. The last_login touch is a bookkeeping write, it does not create
// a new content version.
func (s *DefaultService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apiError.Unauthorized("Invalid username or password", err)
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apiError.Unauthorized("Invalid username or password", err)
	}

	user.LastLogin = time.Now().UTC()
	err = s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login", user.LastLogin).Error
	if err != nil {
		return nil, "", err
	}

	token, err := auth.GenerateJWT(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	if redis.RedisClient != nil {
		if err := redis.RedisClient.Set(ctx, token, user.ID, tokenTTL).Err(); err != nil {
			return nil, "", err
		}
	}

	return &user, token, nil
}

// Logout revokes the access token.
func (s *DefaultService) Logout(ctx context.Context, token string) error {
	if redis.RedisClient == nil {
		return nil
	}
	return redis.RedisClient.Del(ctx, token).Err()
}
