package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/huddlehq/huddle/backend/internal/config"
	"github.com/huddlehq/huddle/backend/internal/models"
	"github.com/huddlehq/huddle/backend/internal/utils"
	"github.com/huddlehq/huddle/backend/pkg/response"
)

// AuthService owns account registration, credential checks, token issuance
// and token revocation.
type AuthService struct {
	db          *gorm.DB
	jwtConfig   *config.JWTConfig
	revocations RevocationStore
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, revocations RevocationStore) *AuthService {
	return &AuthService{
		db:          db,
		jwtConfig:   jwtCfg,
		revocations: revocations,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,min=5,max=50"`
	Password string `json:"password" binding:"required,min=3"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	ExpireAt time.Time    `json:"expire_at"`
}

// Register creates an account and returns it with a fresh token.
func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	var existing models.User
	err := s.db.Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		return nil, response.NewConflict("email already in use")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:    req.Email,
		Password: hash,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}

	return s.issueToken(&user)
}

// Login verifies credentials and returns the user with a fresh token.
func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthenticated("incorrect email or password")
		}
		return nil, err
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, response.NewUnauthenticated("incorrect email or password")
	}

	return s.issueToken(&user)
}

func (s *AuthService) issueToken(user *models.User) (*AuthResponse, error) {
	token, err := utils.GenerateToken(user.ID, user.Email, s.jwtConfig.ExpireHour)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token:    token,
		User:     user,
		ExpireAt: time.Now().Add(time.Duration(s.jwtConfig.ExpireHour) * time.Hour),
	}, nil
}

// Logout blacklists the token for its remaining validity, bounded by the
// maximum issued lifetime. The signature stays structurally valid, so the
// revocation store is what guarantees rejection on reuse.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := utils.ParseToken(token)
	if err != nil {
		// Already invalid or expired, nothing to revoke.
		return nil
	}

	maxTTL := time.Duration(s.jwtConfig.ExpireHour) * time.Hour
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > maxTTL {
		ttl = maxTTL
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.revocations.Revoke(ctx, token, ttl); err != nil {
		return response.NewUpstream("revocation store unavailable")
	}
	return nil
}

// GetUserByID returns a user profile.
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// ListOthers returns every user except the caller, for member pickers.
func (s *AuthService) ListOthers(userID uint) ([]models.User, error) {
	var users []models.User
	if err := s.db.Where("id != ?", userID).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
