package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

type cardRepository interface {
	GetByID(ctx context.Context, id int) (*models.Card, error)
	List(ctx context.Context) ([]models.Card, error)
	ListAvailable(ctx context.Context) ([]models.Card, error)
	Create(ctx context.Context, c *models.Card) error
	Update(ctx context.Context, id int, cardName string) (*models.Card, error)
	Delete(ctx context.Context, id int) error
	ForVisitor(ctx context.Context, visitorID int64) (*models.Card, error)
	Stats(ctx context.Context) (*models.CardStats, error)
	Assign(ctx context.Context, cardID int, visitorID int64) (*models.Card, error)
	Release(ctx context.Context, cardID int) (*models.Card, error)
}

type cardVisitorRepo interface {
	GetByID(ctx context.Context, id int64) (*models.Visitor, error)
}

// CardService manages the visitor badge pool. A badge may only go to an
// APPROVED visit, and each visit holds at most one badge; releasing a
// badge checks the visit out.
type CardService struct {
	repo      cardRepository
	visitors  cardVisitorRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCardService constructs a CardService instance.
func NewCardService(repo cardRepository, visitors cardVisitorRepo, validate *validator.Validate, logger *zap.Logger) *CardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CardService{repo: repo, visitors: visitors, validator: validate, logger: logger}
}

// List returns all badges.
func (s *CardService) List(ctx context.Context) ([]models.Card, error) {
	cards, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cards")
	}
	return cards, nil
}

// ListAvailable returns unassigned badges.
func (s *CardService) ListAvailable(ctx context.Context) ([]models.Card, error) {
	cards, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available cards")
	}
	return cards, nil
}

// Get fetches a single badge.
func (s *CardService) Get(ctx context.Context, id int) (*models.Card, error) {
	card, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch card")
	}
	return card, nil
}

// Create registers a new badge.
func (s *CardService) Create(ctx context.Context, req models.CreateCardRequest) (*models.Card, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid card payload")
	}
	card := &models.Card{CardName: req.CardName}
	if err := s.repo.Create(ctx, card); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create card")
	}
	return card, nil
}

// Update renames a badge.
func (s *CardService) Update(ctx context.Context, id int, req models.UpdateCardRequest) (*models.Card, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid card payload")
	}
	card, err := s.repo.Update(ctx, id, req.CardName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", id))
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update card")
	}
	return card, nil
}

// Delete removes a badge from the pool.
func (s *CardService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete card")
	}
	return nil
}

// Stats aggregates badge pool occupancy.
func (s *CardService) Stats(ctx context.Context) (*models.CardStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute card stats")
	}
	return stats, nil
}

// ForVisitor returns the badge held by the visit, if any.
func (s *CardService) ForVisitor(ctx context.Context, visitorID int64) (*models.Card, error) {
	card, err := s.repo.ForVisitor(ctx, visitorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no card assigned to visitor %d", visitorID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch card")
	}
	return card, nil
}

// Assign binds a badge to an approved visit.
func (s *CardService) Assign(ctx context.Context, cardID int, req models.AssignCardRequest) (*models.Card, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	visitorID, err := models.ParseVisitorID(req.VisitorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("Invalid visitor ID format: %s", req.VisitorID))
	}

	visitor, err := s.visitors.GetByID(ctx, visitorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Visitor with ID %s not found", req.VisitorID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch visitor")
	}
	if visitor.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("visitor %d is %s, only APPROVED visitors can receive a card", visitor.ID, visitor.Status))
	}
	if visitor.CheckOutTime != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("visitor %d has already checked out", visitor.ID))
	}

	card, err := s.repo.Assign(ctx, cardID, visitorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("card assigned",
		zap.Int("card_id", card.ID),
		zap.Int64("visitor_id", visitorID))
	return card, nil
}

// Release frees a badge and checks the holding visit out.
func (s *CardService) Release(ctx context.Context, cardID int) (*models.Card, error) {
	card, err := s.repo.Release(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("card released", zap.Int("card_id", card.ID))
	return card, nil
}
