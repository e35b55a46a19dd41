package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatewise/vms-api/internal/models"
)

const approverColumns = `id, username, email, name, ph_no, warehouse, hashed_password,
superuser, admin, is_active, created_at, updated_at`

// ApproverRepository persists hosts. Approvers and admins live in
// separate tables but admins are read into the same Approver shape.
type ApproverRepository struct {
	db *sqlx.DB
}

// NewApproverRepository constructs the repository.
func NewApproverRepository(db *sqlx.DB) *ApproverRepository {
	return &ApproverRepository{db: db}
}

// FindByUsername fetches an approver by login name.
func (r *ApproverRepository) FindByUsername(ctx context.Context, username string) (*models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE username = $1`, approverColumns)
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, username); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByEmail fetches an approver by email address.
func (r *ApproverRepository) FindByEmail(ctx context.Context, email string) (*models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE email = $1`, approverColumns)
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, email); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAdmin fetches an admin by username or email. Admins carry no
// phone number and are never superusers.
func (r *ApproverRepository) FindAdmin(ctx context.Context, usernameOrEmail string) (*models.Approver, error) {
	const query = `SELECT id, username, email, name, NULL AS ph_no, warehouse, hashed_password,
FALSE AS superuser, TRUE AS admin, is_active, created_at, updated_at
FROM admins WHERE username = $1 OR email = $1`
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, usernameOrEmail); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByUsernameOrName fetches an approver whose login name or display
// name equals the query, case-insensitively.
func (r *ApproverRepository) FindByUsernameOrName(ctx context.Context, q string) (*models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers
WHERE username ILIKE $1 OR name ILIKE $1 LIMIT 1`, approverColumns)
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, q); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByID fetches an approver by primary key.
func (r *ApproverRepository) FindByID(ctx context.Context, id int) (*models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE id = $1`, approverColumns)
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns approvers with offset pagination.
func (r *ApproverRepository) List(ctx context.Context, offset, limit int) ([]models.Approver, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM approvers ORDER BY username LIMIT $1 OFFSET $2`, approverColumns)
	var approvers []models.Approver
	if err := r.db.SelectContext(ctx, &approvers, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	return approvers, nil
}

// ListActive returns all active approvers, ordered by login name.
func (r *ApproverRepository) ListActive(ctx context.Context) ([]models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE is_active = TRUE ORDER BY username`, approverColumns)
	var approvers []models.Approver
	if err := r.db.SelectContext(ctx, &approvers, query); err != nil {
		return nil, fmt.Errorf("list active approvers: %w", err)
	}
	return approvers, nil
}

// ListSimple returns the public selection-list projection.
func (r *ApproverRepository) ListSimple(ctx context.Context, activeOnly bool) ([]models.ApproverSimple, error) {
	query := `SELECT username, name, email, ph_no FROM approvers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY username`
	var approvers []models.ApproverSimple
	if err := r.db.SelectContext(ctx, &approvers, query); err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	return approvers, nil
}

// SuperuserPhones returns the phone numbers of all active superusers.
func (r *ApproverRepository) SuperuserPhones(ctx context.Context) ([]string, error) {
	const query = `SELECT ph_no FROM approvers
WHERE superuser = TRUE AND is_active = TRUE AND ph_no IS NOT NULL`
	var phones []string
	if err := r.db.SelectContext(ctx, &phones, query); err != nil {
		return nil, fmt.Errorf("list superuser phones: %w", err)
	}
	return phones, nil
}

// FindByPhoneLike fetches the first approver whose stored phone number
// contains the given digits.
func (r *ApproverRepository) FindByPhoneLike(ctx context.Context, digits string) (*models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE ph_no LIKE $1 LIMIT 1`, approverColumns)
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, "%"+digits+"%"); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByExactPhone fetches an approver by the exact stored phone value.
func (r *ApproverRepository) FindByExactPhone(ctx context.Context, phone string) (*models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE ph_no = $1 LIMIT 1`, approverColumns)
	var a models.Approver
	if err := r.db.GetContext(ctx, &a, query, phone); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListWithPhones returns all approvers that have a phone number.
func (r *ApproverRepository) ListWithPhones(ctx context.Context) ([]models.Approver, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvers WHERE ph_no IS NOT NULL`, approverColumns)
	var approvers []models.Approver
	if err := r.db.SelectContext(ctx, &approvers, query); err != nil {
		return nil, fmt.Errorf("list approvers with phones: %w", err)
	}
	return approvers, nil
}

// Create inserts a new approver and assigns the generated ID.
func (r *ApproverRepository) Create(ctx context.Context, a *models.Approver) error {
	const query = `INSERT INTO approvers (username, email, name, ph_no, warehouse, hashed_password,
superuser, admin, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING id`
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if err := r.db.QueryRowxContext(ctx, query,
		a.Username, a.Email, a.Name, a.PhNo, a.Warehouse, a.HashedPassword,
		a.Superuser, a.Admin, a.IsActive, now,
	).Scan(&a.ID); err != nil {
		return fmt.Errorf("create approver: %w", err)
	}
	return nil
}

// Update persists mutable approver fields.
func (r *ApproverRepository) Update(ctx context.Context, a *models.Approver) error {
	const query = `UPDATE approvers SET email = :email, name = :name, ph_no = :ph_no,
warehouse = :warehouse, hashed_password = :hashed_password, superuser = :superuser,
admin = :admin, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	a.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("update approver: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *ApproverRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	const query = `UPDATE approvers SET hashed_password = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, hash, time.Now().UTC()); err != nil {
		return fmt.Errorf("update approver password: %w", err)
	}
	return nil
}

// DeleteByUsername removes an approver.
func (r *ApproverRepository) DeleteByUsername(ctx context.Context, username string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM approvers WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete approver: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete approver: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete approver %s: no rows affected", username)
	}
	return nil
}
