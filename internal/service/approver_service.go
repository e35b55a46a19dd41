package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

type approverRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.Approver, error)
	FindByEmail(ctx context.Context, email string) (*models.Approver, error)
	List(ctx context.Context, offset, limit int) ([]models.Approver, error)
	ListSimple(ctx context.Context, activeOnly bool) ([]models.ApproverSimple, error)
	Create(ctx context.Context, a *models.Approver) error
	Update(ctx context.Context, a *models.Approver) error
	DeleteByUsername(ctx context.Context, username string) error
}

// ApproverService manages the host directory. Mutations are gated on
// the caller being a superuser.
type ApproverService struct {
	repo      approverRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApproverService constructs an ApproverService instance.
func NewApproverService(repo approverRepository, validate *validator.Validate, logger *zap.Logger) *ApproverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApproverService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new approver. Only superusers may call this.
func (s *ApproverService) Create(ctx context.Context, actor *models.Approver, req models.CreateApproverRequest) (*models.Approver, error) {
	if !actor.Superuser {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superusers can create approvers")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approver payload")
	}

	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("username %s is already taken", req.Username))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already registered", req.Email))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	approver := &models.Approver{
		Username:       req.Username,
		Email:          req.Email,
		Name:           req.Name,
		PhNo:           req.PhNo,
		Warehouse:      req.Warehouse,
		HashedPassword: string(hash),
		Superuser:      req.Superuser,
		Admin:          req.Admin,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, approver); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approver")
	}

	s.logger.Info("approver created",
		zap.String("username", approver.Username),
		zap.String("by", actor.Username))
	return approver, nil
}

// Get fetches an approver by username.
func (s *ApproverService) Get(ctx context.Context, username string) (*models.Approver, error) {
	approver, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("approver %s not found", username))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch approver")
	}
	return approver, nil
}

// List returns approvers with offset pagination.
func (s *ApproverService) List(ctx context.Context, offset, limit int) ([]models.Approver, error) {
	approvers, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvers")
	}
	return approvers, nil
}

// ListSimple returns the public host selection list.
func (s *ApproverService) ListSimple(ctx context.Context, activeOnly bool) ([]models.ApproverSimple, error) {
	approvers, err := s.repo.ListSimple(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvers")
	}
	return approvers, nil
}

// Update modifies an approver. Superusers may update anyone; a regular
// approver may only update their own profile and cannot escalate.
func (s *ApproverService) Update(ctx context.Context, actor *models.Approver, username string, req models.UpdateApproverRequest) (*models.Approver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approver payload")
	}
	if !actor.Superuser && actor.Username != username {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot update another approver")
	}
	if !actor.Superuser && (req.Superuser != nil || req.Admin != nil || req.IsActive != nil) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superusers can change roles or account state")
	}

	approver, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != approver.Email {
		if _, err := s.repo.FindByEmail(ctx, *req.Email); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already registered", *req.Email))
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		approver.Email = *req.Email
	}
	if req.Name != nil {
		approver.Name = *req.Name
	}
	if req.PhNo != nil {
		approver.PhNo = req.PhNo
	}
	if req.Warehouse != nil {
		approver.Warehouse = req.Warehouse
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		approver.HashedPassword = string(hash)
	}
	if req.Superuser != nil {
		approver.Superuser = *req.Superuser
	}
	if req.Admin != nil {
		approver.Admin = *req.Admin
	}
	if req.IsActive != nil {
		approver.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, approver); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approver")
	}
	return approver, nil
}

// Delete removes an approver. Only superusers may call this, and they
// cannot delete themselves.
func (s *ApproverService) Delete(ctx context.Context, actor *models.Approver, username string) error {
	if !actor.Superuser {
		return appErrors.Clone(appErrors.ErrForbidden, "only superusers can delete approvers")
	}
	if actor.Username == username {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, username); err != nil {
		return err
	}
	if err := s.repo.DeleteByUsername(ctx, username); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete approver")
	}
	s.logger.Info("approver deleted",
		zap.String("username", username),
		zap.String("by", actor.Username))
	return nil
}
