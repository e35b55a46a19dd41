package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

const cardColumns = `id, card_name, occupied, occupied_by, created_at, updated_at`

const uniqueViolation = "23505"

// CardRepository persists the badge pool. Assign and Release run inside
// transactions with conditional updates so concurrent calls cannot
// violate the one-card-per-visit invariant.
type CardRepository struct {
	db *sqlx.DB
}

// NewCardRepository constructs the repository.
func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

// GetByID fetches a single card.
func (r *CardRepository) GetByID(ctx context.Context, id int) (*models.Card, error) {
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE id = $1`, cardColumns)
	var c models.Card
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns all cards ordered by name.
func (r *CardRepository) List(ctx context.Context) ([]models.Card, error) {
	query := fmt.Sprintf(`SELECT %s FROM cards ORDER BY card_name`, cardColumns)
	var cards []models.Card
	if err := r.db.SelectContext(ctx, &cards, query); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// ListAvailable returns unassigned cards ordered by name.
func (r *CardRepository) ListAvailable(ctx context.Context) ([]models.Card, error) {
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE occupied = FALSE ORDER BY card_name`, cardColumns)
	var cards []models.Card
	if err := r.db.SelectContext(ctx, &cards, query); err != nil {
		return nil, fmt.Errorf("list available cards: %w", err)
	}
	return cards, nil
}

// Create registers a new badge.
func (r *CardRepository) Create(ctx context.Context, c *models.Card) error {
	const query = `INSERT INTO cards (card_name, occupied, occupied_by, created_at, updated_at)
VALUES ($1, FALSE, NULL, $2, $2) RETURNING id`
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Occupied = false
	c.OccupiedBy = nil
	if err := r.db.QueryRowxContext(ctx, query, c.CardName, now).Scan(&c.ID); err != nil {
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

// Update renames a badge. Returns sql.ErrNoRows when the card does not
// exist and ErrConflict when the new name is already taken.
func (r *CardRepository) Update(ctx context.Context, id int, cardName string) (*models.Card, error) {
	query := fmt.Sprintf(`UPDATE cards SET card_name = $2, updated_at = $3 WHERE id = $1 RETURNING %s`, cardColumns)
	var c models.Card
	if err := r.db.GetContext(ctx, &c, query, id, cardName, time.Now().UTC()); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("card name %q is already in use", cardName))
		}
		return nil, err
	}
	return &c, nil
}

// Delete removes a badge.
func (r *CardRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ForVisitor returns the card currently held by the visit, or
// sql.ErrNoRows when none is assigned.
func (r *CardRepository) ForVisitor(ctx context.Context, visitorID int64) (*models.Card, error) {
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE occupied_by = $1`, cardColumns)
	var c models.Card
	if err := r.db.GetContext(ctx, &c, query, visitorID); err != nil {
		return nil, err
	}
	return &c, nil
}

// Stats aggregates badge pool occupancy.
func (r *CardRepository) Stats(ctx context.Context) (*models.CardStats, error) {
	const query = `SELECT
COUNT(*) AS total,
COUNT(*) FILTER (WHERE occupied) AS occupied,
COUNT(*) FILTER (WHERE NOT occupied) AS available
FROM cards`
	var stats models.CardStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("card stats: %w", err)
	}
	return &stats, nil
}

// Assign binds the card to the visit. The occupancy checks and the
// conditional update share one transaction; losing a race surfaces as
// ErrCardOccupied rather than a double assignment.
func (r *CardRepository) Assign(ctx context.Context, cardID int, visitorID int64) (*models.Card, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assign tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var card models.Card
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE id = $1 FOR UPDATE`, cardColumns)
	if err := tx.GetContext(ctx, &card, query, cardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", cardID))
		}
		return nil, fmt.Errorf("load card: %w", err)
	}
	if card.Occupied {
		return nil, appErrors.Clone(appErrors.ErrCardOccupied, fmt.Sprintf("card %s is already assigned", card.CardName))
	}

	// Fast path only: the row lock above does not cover a concurrent
	// assign of a different card to the same visitor. The partial unique
	// index on (occupied_by) WHERE occupied is what actually enforces
	// one card per visitor; its violation is mapped below.
	var held int
	if err := tx.GetContext(ctx, &held, `SELECT COUNT(*) FROM cards WHERE occupied_by = $1`, visitorID); err != nil {
		return nil, fmt.Errorf("check visitor card: %w", err)
	}
	if held > 0 {
		return nil, appErrors.Clone(appErrors.ErrVisitorHasCard, fmt.Sprintf("visitor %d already has a card assigned", visitorID))
	}

	const update = `UPDATE cards SET occupied = TRUE, occupied_by = $2, updated_at = $3
WHERE id = $1 AND occupied = FALSE`
	res, err := tx.ExecContext(ctx, update, cardID, visitorID, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, appErrors.Clone(appErrors.ErrVisitorHasCard, fmt.Sprintf("visitor %d already has a card assigned", visitorID))
		}
		return nil, fmt.Errorf("assign card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("assign card: %w", err)
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrCardOccupied, fmt.Sprintf("card %s is already assigned", card.CardName))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assign tx: %w", err)
	}

	card.Occupied = true
	card.OccupiedBy = &visitorID
	return &card, nil
}

// Release frees the card and stamps the bound visit's check-out time in
// the same transaction.
func (r *CardRepository) Release(ctx context.Context, cardID int) (*models.Card, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var card models.Card
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE id = $1 FOR UPDATE`, cardColumns)
	if err := tx.GetContext(ctx, &card, query, cardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", cardID))
		}
		return nil, fmt.Errorf("load card: %w", err)
	}
	if !card.Occupied || card.OccupiedBy == nil {
		return nil, appErrors.Clone(appErrors.ErrCardNotOccupied, fmt.Sprintf("card %s is not currently assigned", card.CardName))
	}

	now := time.Now().UTC()
	const update = `UPDATE cards SET occupied = FALSE, occupied_by = NULL, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, cardID, now); err != nil {
		return nil, fmt.Errorf("release card: %w", err)
	}

	const checkout = `UPDATE visitors SET check_out_time = $2, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, checkout, *card.OccupiedBy, now); err != nil {
		return nil, fmt.Errorf("stamp visitor check-out: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit release tx: %w", err)
	}

	card.Occupied = false
	card.OccupiedBy = nil
	return &card, nil
}
