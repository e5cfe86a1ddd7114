package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/pkg/crypto"
	jwtpkg "github.com/soundly/backend/pkg/jwt"
	"gorm.io/gorm"
)

type AuthService struct {
	db     *gorm.DB
	redis  *redis.Client
	cfg    *config.Config
	logger *log.Logger
}

// NewAuthService wires the auth service. redis may be nil, in which case
// access tokens cannot be revoked before they expire.
func NewAuthService(db *gorm.DB, redis *redis.Client, cfg *config.Config, logger *log.Logger) *AuthService {
	return &AuthService{
		db:     db,
		redis:  redis,
		cfg:    cfg,
		logger: logger,
	}
}

// TokenPair is returned on login and refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	Name       string
	Profession string
	Country    string
	City       string
}

// Register creates a new basic account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var existing models.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", in.Username, in.Email).First(&existing).Error
	if err == nil {
		if existing.Username == in.Username {
			return nil, ErrUsernameTaken
		}
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := crypto.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Username:   in.Username,
		Email:      in.Email,
		Password:   hashed,
		Name:       in.Name,
		Profession: in.Profession,
		Country:    in.Country,
		City:       in.City,
		Type:       models.UserTypeBasic,
		IsActive:   true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if models.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.logger.Info("user registered", "user", user.ID, "username", user.Username)
	return user, nil
}

// Login authenticates by username or email and issues a token pair
func (s *AuthService) Login(ctx context.Context, login, password string) (*TokenPair, *models.User, error) {
	login = strings.TrimSpace(login)

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", login, strings.ToLower(login)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}
	if !crypto.CheckPassword(password, user.Password) {
		s.logger.Warn("failed login", "username", user.Username)
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, &user)
	if err != nil {
		return nil, nil, err
	}
	return pair, &user, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := jwtpkg.ValidateToken(refreshToken, s.cfg.JWTSecret, jwtpkg.RefreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var stored models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token = ?", refreshToken).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := s.db.WithContext(ctx).Delete(&stored).Error; err != nil {
		return nil, err
	}
	return s.issue(ctx, &user)
}

// Logout drops every refresh token of the user and, when Redis is
// available, blacklists the presented access token until it expires.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, accessToken string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return err
	}
	if s.redis == nil || accessToken == "" {
		return nil
	}
	key := fmt.Sprintf("blacklist:token:%s", accessToken)
	if err := s.redis.Set(ctx, key, "1", s.cfg.JWTAccessTokenDuration).Err(); err != nil {
		s.logger.Warn("could not blacklist access token", "user", userID, "err", err)
	}
	return nil
}

// ValidateAccessToken validates an access token and returns its claims
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*jwtpkg.Claims, error) {
	claims, err := jwtpkg.ValidateToken(token, s.cfg.JWTSecret, jwtpkg.AccessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// A Redis outage lets the request through.
	if s.redis != nil {
		exists, err := s.redis.Exists(ctx, fmt.Sprintf("blacklist:token:%s", token)).Result()
		if err != nil {
			s.logger.Warn("could not check token blacklist", "err", err)
		} else if exists > 0 {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// CleanupExpiredTokens removes expired refresh tokens
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	sub := jwtpkg.Subject{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}

	access, err := jwtpkg.GenerateToken(sub, jwtpkg.AccessToken, s.cfg.JWTSecret, s.cfg.JWTAccessTokenDuration)
	if err != nil {
		return nil, err
	}
	refresh, err := jwtpkg.GenerateToken(sub, jwtpkg.RefreshToken, s.cfg.JWTSecret, s.cfg.JWTRefreshTokenDuration)
	if err != nil {
		return nil, err
	}

	row := &models.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshTokenDuration),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.JWTAccessTokenDuration.Seconds()),
	}, nil
}
