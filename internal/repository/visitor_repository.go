package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatewise/vms-api/internal/models"
)

const visitorColumns = `id, visitor_name, mobile_number, email_address, company, person_to_meet,
reason_to_visit, warehouse, extra_data, status, img_url, rejection_reason,
check_in_time, check_out_time, created_at, updated_at`

// VisitorRepository persists visit records.
type VisitorRepository struct {
	db *sqlx.DB
}

// NewVisitorRepository constructs the repository.
func NewVisitorRepository(db *sqlx.DB) *VisitorRepository {
	return &VisitorRepository{db: db}
}

// Create inserts a new visit row.
func (r *VisitorRepository) Create(ctx context.Context, v *models.Visitor) error {
	const query = `INSERT INTO visitors (id, visitor_name, mobile_number, email_address, company,
person_to_meet, reason_to_visit, warehouse, extra_data, status, img_url, rejection_reason,
check_in_time, check_out_time, created_at, updated_at)
VALUES (:id, :visitor_name, :mobile_number, :email_address, :company,
:person_to_meet, :reason_to_visit, :warehouse, :extra_data, :status, :img_url, :rejection_reason,
:check_in_time, :check_out_time, :created_at, :updated_at)`
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("create visitor: %w", err)
	}
	return nil
}

// GetByID fetches a single visit.
func (r *VisitorRepository) GetByID(ctx context.Context, id int64) (*models.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors WHERE id = $1`, visitorColumns)
	var v models.Visitor
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns visits matching the filter, newest check-in first.
func (r *VisitorRepository) List(ctx context.Context, filter models.VisitorFilter) ([]models.Visitor, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PersonToMeet != "" {
		args = append(args, filter.PersonToMeet)
		conditions = append(conditions, fmt.Sprintf("person_to_meet = $%d", len(args)))
	}
	if filter.Warehouse != "" {
		args = append(args, filter.Warehouse)
		conditions = append(conditions, fmt.Sprintf("warehouse = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf("(visitor_name ILIKE $%d OR mobile_number ILIKE $%d OR company ILIKE $%d)", idx, idx, idx))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM visitors" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count visitors: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM visitors%s ORDER BY check_in_time DESC LIMIT $%d OFFSET $%d`,
		visitorColumns, where, len(args)-1, len(args))

	var visitors []models.Visitor
	if err := r.db.SelectContext(ctx, &visitors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list visitors: %w", err)
	}
	return visitors, total, nil
}

// ListByPhone returns visits whose mobile number ends with the given
// normalized digits, newest first.
func (r *VisitorRepository) ListByPhone(ctx context.Context, normalized string) ([]models.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors WHERE mobile_number LIKE $1 ORDER BY check_in_time DESC`, visitorColumns)
	var visitors []models.Visitor
	if err := r.db.SelectContext(ctx, &visitors, query, "%"+normalized); err != nil {
		return nil, fmt.Errorf("list visitors by phone: %w", err)
	}
	return visitors, nil
}

// ListActive returns approved visits that have not checked out yet.
func (r *VisitorRepository) ListActive(ctx context.Context) ([]models.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors
WHERE status = $1 AND check_out_time IS NULL ORDER BY check_in_time DESC`, visitorColumns)
	var visitors []models.Visitor
	if err := r.db.SelectContext(ctx, &visitors, query, models.StatusApproved); err != nil {
		return nil, fmt.Errorf("list active visitors: %w", err)
	}
	return visitors, nil
}

// Update persists mutable visit fields.
func (r *VisitorRepository) Update(ctx context.Context, v *models.Visitor) error {
	const query = `UPDATE visitors SET visitor_name = :visitor_name, mobile_number = :mobile_number,
email_address = :email_address, company = :company, person_to_meet = :person_to_meet,
reason_to_visit = :reason_to_visit, warehouse = :warehouse, extra_data = :extra_data,
img_url = :img_url, updated_at = :updated_at WHERE id = :id`
	v.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("update visitor: %w", err)
	}
	return nil
}

// UpdateStatus sets the decision state. An approval clears any stored
// rejection reason.
func (r *VisitorRepository) UpdateStatus(ctx context.Context, id int64, status models.VisitorStatus, rejectionReason *string) error {
	const query = `UPDATE visitors SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, rejectionReason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update visitor status: %w", err)
	}
	return nil
}

// UpdateStatusIfWaiting applies the decision only when the visit is
// still WAITING. Returns false when no row changed.
func (r *VisitorRepository) UpdateStatusIfWaiting(ctx context.Context, id int64, status models.VisitorStatus, rejectionReason *string) (bool, error) {
	const query = `UPDATE visitors SET status = $2, rejection_reason = $3, updated_at = $4
WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, status, rejectionReason, time.Now().UTC(), models.StatusWaiting)
	if err != nil {
		return false, fmt.Errorf("update visitor status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update visitor status: %w", err)
	}
	return affected > 0, nil
}

// SetImageURL records the stored image location for a visit.
func (r *VisitorRepository) SetImageURL(ctx context.Context, id int64, imgURL string) error {
	const query = `UPDATE visitors SET img_url = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, imgURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("set visitor image url: %w", err)
	}
	return nil
}

// Delete removes a visit row.
func (r *VisitorRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM visitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete visitor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete visitor: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete visitor %d: no rows affected", id)
	}
	return nil
}

// Stats aggregates visit counts.
func (r *VisitorRepository) Stats(ctx context.Context) (*models.VisitorStats, error) {
	const query = `SELECT
COUNT(*) AS total,
COUNT(*) FILTER (WHERE status = 'WAITING') AS waiting,
COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved,
COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected,
COUNT(*) FILTER (WHERE check_out_time IS NOT NULL) AS checked_out,
COUNT(*) FILTER (WHERE check_in_time::date = CURRENT_DATE) AS today
FROM visitors`
	var stats models.VisitorStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("visitor stats: %w", err)
	}
	return &stats, nil
}

// GetByIDForHost fetches a visit only when it is addressed to the given
// host (matched by login name or display name).
func (r *VisitorRepository) GetByIDForHost(ctx context.Context, id int64, username, name string) (*models.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors
WHERE id = $1 AND person_to_meet IN ($2, $3)`, visitorColumns)
	var v models.Visitor
	if err := r.db.GetContext(ctx, &v, query, id, username, name); err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestWaitingForHost returns the most recent WAITING visit addressed
// to the host, or sql.ErrNoRows.
func (r *VisitorRepository) LatestWaitingForHost(ctx context.Context, username, name string) (*models.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors
WHERE person_to_meet IN ($1, $2) AND status = $3
ORDER BY check_in_time DESC LIMIT 1`, visitorColumns)
	var v models.Visitor
	if err := r.db.GetContext(ctx, &v, query, username, name, models.StatusWaiting); err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestForHost returns the most recent visit addressed to the host
// regardless of status, or sql.ErrNoRows.
func (r *VisitorRepository) LatestForHost(ctx context.Context, username, name string) (*models.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors
WHERE person_to_meet IN ($1, $2)
ORDER BY check_in_time DESC LIMIT 1`, visitorColumns)
	var v models.Visitor
	if err := r.db.GetContext(ctx, &v, query, username, name); err != nil {
		return nil, err
	}
	return &v, nil
}

// CountForHost counts all visits addressed to the host.
func (r *VisitorRepository) CountForHost(ctx context.Context, username, name string) (int, error) {
	const query = `SELECT COUNT(*) FROM visitors WHERE person_to_meet IN ($1, $2)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, username, name); err != nil {
		return 0, fmt.Errorf("count visitors for host: %w", err)
	}
	return count, nil
}
