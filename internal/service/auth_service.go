package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

type authApproverRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.Approver, error)
	FindByEmail(ctx context.Context, email string) (*models.Approver, error)
	FindAdmin(ctx context.Context, usernameOrEmail string) (*models.Approver, error)
	UpdatePassword(ctx context.Context, id int, hash string) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthService provides authentication use cases for approvers and
// admins. Admin accounts authenticate through the same endpoint and are
// mapped into the approver shape.
type AuthService struct {
	repo      authApproverRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authApproverRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config}
}

// Login authenticates by username or email, checking the approvers
// table first and falling back to the admins table.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	account, err := s.findAccount(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.HashedPassword), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
	}

	if !account.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "Account is inactive. Please contact admin.")
	}

	token, err := s.generateAccessToken(account)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.config.Expiration.Seconds()),
		Approver:    *account,
	}, nil
}

// ForgotPassword resets the password for an approver identified by
// username or email. The endpoint is served without authentication, so
// it reveals only whether the account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) (*models.ForgotPasswordResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forgot password payload")
	}

	approver, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch approver")
		}
		approver, err = s.repo.FindByEmail(ctx, req.Username)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "approver not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch approver")
		}
	}

	if !approver.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "Account is inactive. Please contact admin.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, approver.ID, string(hash)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	s.logger.Info("password reset", zap.String("username", approver.Username))

	return &models.ForgotPasswordResponse{
		Message:  "Password has been reset successfully",
		Username: approver.Username,
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// CurrentAccount loads the account behind a validated claim set.
func (s *AuthService) CurrentAccount(ctx context.Context, claims *models.JWTClaims) (*models.Approver, error) {
	account, err := s.findAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if !account.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "Account is inactive. Please contact admin.")
	}
	return account, nil
}

func (s *AuthService) findAccount(ctx context.Context, usernameOrEmail string) (*models.Approver, error) {
	approver, err := s.repo.FindByUsername(ctx, usernameOrEmail)
	if err == nil {
		return approver, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	approver, err = s.repo.FindByEmail(ctx, usernameOrEmail)
	if err == nil {
		return approver, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return s.repo.FindAdmin(ctx, usernameOrEmail)
}

func (s *AuthService) generateAccessToken(account *models.Approver) (string, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiration)
	claims := &models.JWTClaims{
		ApproverID: account.ID,
		Admin:      account.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   account.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}
