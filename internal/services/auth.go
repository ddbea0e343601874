package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
	"github.com/yungbote/studyloop-backend/internal/utils"
)

// TokenPair is the credential set returned by register, login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AuthService interface {
	Register(ctx context.Context, email, password, firstName, lastName string) (*types.User, *TokenPair, error)
	Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error

	// ValidateAccessToken checks signature, expiry, and that the token is
	// still registered (logout revokes it). Returns the user ID baked into
	// the claims.
	ValidateAccessToken(ctx context.Context, tokenString string) (uuid.UUID, error)
}

type authService struct {
	log    *logger.Logger
	db     *gorm.DB
	users  repos.UserRepo
	tokens repos.UserTokenRepo

	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(log *logger.Logger, db *gorm.DB, users repos.UserRepo, tokens repos.UserTokenRepo) (AuthService, error) {
	secret := utils.GetEnv("JWT_SECRET", "", log)
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	return &authService{
		log:        log.With("service", "AuthService"),
		db:         db,
		users:      users,
		tokens:     tokens,
		secret:     []byte(secret),
		accessTTL:  time.Duration(utils.GetEnvAsInt("JWT_ACCESS_TTL_MINUTES", 60, log)) * time.Minute,
		refreshTTL: time.Duration(utils.GetEnvAsInt("JWT_REFRESH_TTL_HOURS", 24*14, log)) * time.Hour,
	}, nil
}

type accessClaims struct {
	jwt.RegisteredClaims
}

func (s *authService) signToken(userID uuid.UUID, ttl time.Duration, tokenType string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
			Issuer:    "studyloop",
			Audience:  jwt.ClaimStrings{tokenType},
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *authService) issuePair(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*TokenPair, error) {
	access, accessExp, err := s.signToken(userID, s.accessTTL, "access")
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.signToken(userID, s.refreshTTL, "refresh")
	if err != nil {
		return nil, err
	}

	// One active token row per user.
	if err := s.tokens.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{userID}); err != nil {
		return nil, err
	}
	_, err = s.tokens.Create(ctx, tx, []*types.UserToken{{
		ID:           uuid.New(),
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExp,
	}})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

func (s *authService) Register(ctx context.Context, email, password, firstName, lastName string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(password) < 8 {
		return nil, nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	existing, err := s.users.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return nil, nil, err
	}
	if len(existing) > 0 {
		return nil, nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  string(hashed),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.users.Create(ctx, tx, []*types.User{user}); err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	found, err := s.users.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return nil, nil, err
	}
	if len(found) == 0 {
		return nil, nil, ErrInvalidCredentials
	}
	user := found[0]

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pair, err = s.issuePair(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.parseToken(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}

	stored, err := s.tokens.GetByRefreshToken(ctx, nil, refreshToken)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.UserID != userID {
		return nil, ErrInvalidToken
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pair, err = s.issuePair(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *authService) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.FullDeleteByUserIDs(ctx, nil, []uuid.UUID{userID})
}

func (s *authService) ValidateAccessToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	userID, err := s.parseToken(tokenString, "access")
	if err != nil {
		return uuid.Nil, err
	}

	stored, err := s.tokens.GetByAccessToken(ctx, nil, tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	if stored == nil || stored.UserID != userID {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (s *authService) parseToken(tokenString, tokenType string) (uuid.UUID, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithAudience(tokenType))
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}
