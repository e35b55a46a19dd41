package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/match"
	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
	"github.com/gatewise/vms-api/pkg/export"
	"github.com/gatewise/vms-api/pkg/sms"
	"github.com/gatewise/vms-api/pkg/storage"
)

const uniqueViolation = "23505"

type visitorRepository interface {
	Create(ctx context.Context, v *models.Visitor) error
	GetByID(ctx context.Context, id int64) (*models.Visitor, error)
	List(ctx context.Context, filter models.VisitorFilter) ([]models.Visitor, int, error)
	ListByPhone(ctx context.Context, normalized string) ([]models.Visitor, error)
	ListActive(ctx context.Context) ([]models.Visitor, error)
	Update(ctx context.Context, v *models.Visitor) error
	UpdateStatus(ctx context.Context, id int64, status models.VisitorStatus, rejectionReason *string) error
	UpdateStatusIfWaiting(ctx context.Context, id int64, status models.VisitorStatus, rejectionReason *string) (bool, error)
	SetImageURL(ctx context.Context, id int64, imgURL string) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.VisitorStats, error)
}

type visitorApproverRepo interface {
	FindByUsernameOrName(ctx context.Context, q string) (*models.Approver, error)
	ListActive(ctx context.Context) ([]models.Approver, error)
}

type visitorAppointmentRepo interface {
	UpsertForVisitor(ctx context.Context, a *models.Appointment) error
}

type visitNotifier interface {
	NotifyCheckIn(v models.Visitor)
	NotifyApproval(v models.Visitor, approverName, qrCode string)
	NotifyRejection(v models.Visitor, reason *string)
}

// VisitorConfig tunes visit intake and decisions.
type VisitorConfig struct {
	QRPrefix       string
	DecisionsFinal bool
	MaxImageBytes  int64
}

// VisitorService owns the visit lifecycle: intake, listing, decisions
// and exports.
type VisitorService struct {
	repo         visitorRepository
	approvers    visitorApproverRepo
	appointments visitorAppointmentRepo
	notifier     visitNotifier
	store        *storage.LocalStorage
	signer       *storage.SignedURLSigner
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          VisitorConfig
	now          func() time.Time
}

// NewVisitorService constructs a VisitorService instance.
func NewVisitorService(
	repo visitorRepository,
	approvers visitorApproverRepo,
	appointments visitorAppointmentRepo,
	notifier visitNotifier,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg VisitorConfig,
) *VisitorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.QRPrefix == "" {
		cfg.QRPrefix = "APT"
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 * 1024 * 1024
	}
	return &VisitorService{
		repo:         repo,
		approvers:    approvers,
		appointments: appointments,
		notifier:     notifier,
		store:        store,
		signer:       signer,
		validator:    validate,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// CheckIn registers a walk-in visit and alerts the host.
func (s *VisitorService) CheckIn(ctx context.Context, req models.CheckInRequest) (*models.Visitor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	visitor := &models.Visitor{
		VisitorName:   strings.TrimSpace(req.VisitorName),
		MobileNumber:  strings.TrimSpace(req.MobileNumber),
		EmailAddress:  req.EmailAddress,
		Company:       req.Company,
		PersonToMeet:  strings.TrimSpace(req.PersonToMeet),
		ReasonToVisit: strings.TrimSpace(req.ReasonToVisit),
		Warehouse:     req.Warehouse,
		Status:        models.StatusWaiting,
	}

	if err := s.create(ctx, visitor); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyCheckIn(*visitor)
	}
	return visitor, nil
}

// CheckInWithImage registers a visit and stores the captured photo. A
// failed upload never fails the check-in.
func (s *VisitorService) CheckInWithImage(ctx context.Context, req models.CheckInRequest, image []byte, contentType string) (*models.Visitor, error) {
	if int64(len(image)) > s.cfg.MaxImageBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("image exceeds the maximum size of %d bytes", s.cfg.MaxImageBytes))
	}
	ext, ok := imageExtension(contentType)
	if len(image) > 0 && !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unsupported image content type %q", contentType))
	}

	visitor, err := s.CheckIn(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(image) == 0 || s.store == nil {
		return visitor, nil
	}

	key := fmt.Sprintf("visitors/%s%s", visitor.VisitorNumber(), ext)
	if _, err := s.store.Save(key, image); err != nil {
		s.logger.Warn("failed to store visitor image", zap.Int64("visitor_id", visitor.ID), zap.Error(err))
		return visitor, nil
	}

	imgURL := key
	if s.signer != nil {
		token, _, err := s.signer.Generate(visitor.VisitorNumber(), key)
		if err == nil {
			imgURL = "/files/" + token
		} else {
			s.logger.Warn("failed to sign image url", zap.Int64("visitor_id", visitor.ID), zap.Error(err))
		}
	}
	if err := s.repo.SetImageURL(ctx, visitor.ID, imgURL); err != nil {
		s.logger.Warn("failed to record image url", zap.Int64("visitor_id", visitor.ID), zap.Error(err))
		return visitor, nil
	}
	visitor.ImgURL = &imgURL
	return visitor, nil
}

// FormIntake registers an appointment request submitted through the
// external form. The free-text host name is resolved against the
// approver directory, fuzzily when no exact match exists.
func (s *VisitorService) FormIntake(ctx context.Context, req models.FormIntakeRequest) (*models.Visitor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	approver, err := s.resolveHost(ctx, req.PersonToMeet)
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = "google_form"
	}
	extras := models.VisitExtras{
		DateOfVisit:       req.DateOfVisit,
		TimeSlot:          req.TimeSlot,
		CarryingItems:     req.CarryingItems,
		AdditionalRemarks: req.AdditionalRemarks,
		Source:            source,
		SheetName:         req.SheetName,
		RowNumber:         req.RowNumber,
		SubmittedAt:       req.SubmittedAt,
	}
	extraJSON, err := json.Marshal(extras)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode form details")
	}
	extraData := string(extraJSON)

	visitor := &models.Visitor{
		VisitorName:   strings.TrimSpace(req.VisitorName),
		MobileNumber:  strings.TrimSpace(req.MobileNumber),
		EmailAddress:  req.EmailAddress,
		Company:       req.Company,
		PersonToMeet:  approver.Username,
		ReasonToVisit: models.AppointmentReasonPrefix + " " + strings.TrimSpace(req.Purpose),
		ExtraData:     &extraData,
		Status:        models.StatusWaiting,
	}

	if err := s.create(ctx, visitor); err != nil {
		return nil, err
	}

	s.logger.Info("appointment request recorded",
		zap.Int64("visitor_id", visitor.ID),
		zap.String("host", approver.Username))

	if s.notifier != nil {
		s.notifier.NotifyCheckIn(*visitor)
	}
	return visitor, nil
}

// Get fetches a visit by its numeric identifier.
func (s *VisitorService) Get(ctx context.Context, id int64) (*models.Visitor, error) {
	visitor, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Visitor with ID %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch visitor")
	}
	return visitor, nil
}

// GetByNumber fetches a visit by the raw visitor number string.
func (s *VisitorService) GetByNumber(ctx context.Context, raw string) (*models.Visitor, error) {
	id, err := models.ParseVisitorID(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("Invalid visitor ID format: %s", raw))
	}
	return s.Get(ctx, id)
}

// List returns visits matching the filter plus pagination metadata.
func (s *VisitorService) List(ctx context.Context, filter models.VisitorFilter) ([]models.Visitor, *models.Pagination, error) {
	visitors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list visitors")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	return visitors, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ListByPhone returns visits whose mobile number matches the query.
func (s *VisitorService) ListByPhone(ctx context.Context, phone string) ([]models.Visitor, error) {
	normalized := sms.NormalizeForMatching(phone)
	if normalized == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "phone number required")
	}
	visitors, err := s.repo.ListByPhone(ctx, normalized)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list visitors by phone")
	}
	return visitors, nil
}

// ListActive returns approved visits still on the premises.
func (s *VisitorService) ListActive(ctx context.Context) ([]models.Visitor, error) {
	visitors, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active visitors")
	}
	return visitors, nil
}

// Update applies partial edits to a visit.
func (s *VisitorService) Update(ctx context.Context, id int64, req models.UpdateVisitorRequest) (*models.Visitor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	visitor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.VisitorName != nil {
		visitor.VisitorName = *req.VisitorName
	}
	if req.MobileNumber != nil {
		visitor.MobileNumber = *req.MobileNumber
	}
	if req.EmailAddress != nil {
		visitor.EmailAddress = req.EmailAddress
	}
	if req.Company != nil {
		visitor.Company = req.Company
	}
	if req.PersonToMeet != nil {
		visitor.PersonToMeet = *req.PersonToMeet
	}
	if req.ReasonToVisit != nil {
		visitor.ReasonToVisit = *req.ReasonToVisit
	}
	if req.Warehouse != nil {
		visitor.Warehouse = req.Warehouse
	}

	if err := s.repo.Update(ctx, visitor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visitor")
	}
	return visitor, nil
}

// Delete removes a visit.
func (s *VisitorService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete visitor")
	}
	return nil
}

// Stats aggregates visit counts for the dashboard.
func (s *VisitorService) Stats(ctx context.Context) (*models.VisitorStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute visitor stats")
	}
	return stats, nil
}

// Decide moves a visit to APPROVED or REJECTED, maintains the linked
// appointment row and queues visitor notifications. The decider is the
// authenticated approver (or the SMS reply sender).
func (s *VisitorService) Decide(ctx context.Context, decider *models.Approver, id int64, req models.DecisionRequest) (*models.Visitor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	visitor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rejectionReason := req.RejectionReason
	if req.Status == models.StatusApproved {
		rejectionReason = nil
	} else if rejectionReason == nil {
		rejectionReason = visitor.RejectionReason
	}

	if s.cfg.DecisionsFinal {
		applied, err := s.repo.UpdateStatusIfWaiting(ctx, visitor.ID, req.Status, rejectionReason)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visitor status")
		}
		if !applied {
			return nil, appErrors.Clone(appErrors.ErrDecisionFinal,
				fmt.Sprintf("Visitor %d has already been %s", visitor.ID, strings.ToLower(string(visitor.Status))))
		}
	} else {
		if err := s.repo.UpdateStatus(ctx, visitor.ID, req.Status, rejectionReason); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visitor status")
		}
	}

	visitor.Status = req.Status
	visitor.RejectionReason = rejectionReason

	var qrCode string
	if visitor.IsAppointment() {
		qrCode, err = s.syncAppointment(ctx, visitor)
		if err != nil {
			return nil, err
		}
	}

	if s.notifier != nil {
		switch req.Status {
		case models.StatusApproved:
			s.notifier.NotifyApproval(*visitor, s.hostDisplayName(ctx, visitor.PersonToMeet, decider), qrCode)
		case models.StatusRejected:
			s.notifier.NotifyRejection(*visitor, rejectionReason)
		}
	}

	return visitor, nil
}

// Export renders the filtered visit list as CSV or PDF bytes.
func (s *VisitorService) Export(ctx context.Context, filter models.VisitorFilter, format string) ([]byte, string, string, error) {
	filter.Page = 1
	if filter.PageSize < 1 {
		filter.PageSize = 10000
	}
	visitors, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visitors for export")
	}

	dataset := export.Dataset{
		Headers: []string{"Visitor ID", "Name", "Mobile", "Email", "Company", "Person To Meet", "Reason", "Status", "Check-In Time", "Check-Out Time"},
	}
	for i := range visitors {
		v := &visitors[i]
		row := map[string]string{
			"Visitor ID":     v.VisitorNumber(),
			"Name":           v.VisitorName,
			"Mobile":         v.MobileNumber,
			"Person To Meet": v.PersonToMeet,
			"Reason":         v.ReasonToVisit,
			"Status":         string(v.Status),
			"Check-In Time":  v.CheckInTime.Format(time.RFC3339),
		}
		if v.EmailAddress != nil {
			row["Email"] = *v.EmailAddress
		}
		if v.Company != nil {
			row["Company"] = *v.Company
		}
		if v.CheckOutTime != nil {
			row["Check-Out Time"] = v.CheckOutTime.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	stamp := s.now().Format("20060102_150405")
	switch strings.ToLower(format) {
	case "", "csv":
		data, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return data, fmt.Sprintf("visitors_%s.csv", stamp), "text/csv", nil
	case "pdf":
		data, err := export.NewPDFExporter().Render(dataset, "Visitor Report")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return data, fmt.Sprintf("visitors_%s.pdf", stamp), "application/pdf", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// create inserts the visit, deriving the identifier from the check-in
// second and stepping forward on the rare same-second collision.
func (s *VisitorService) create(ctx context.Context, visitor *models.Visitor) error {
	checkIn := s.now()
	for attempt := 0; attempt < 5; attempt++ {
		visitor.CheckInTime = checkIn
		visitor.ID = models.NewVisitorID(checkIn)
		err := s.repo.Create(ctx, visitor)
		if err == nil {
			return nil
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			checkIn = checkIn.Add(time.Second)
			continue
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create visitor")
	}
	return appErrors.Clone(appErrors.ErrInternal, "could not allocate a visitor number")
}

// resolveHost matches a free-text host name to an approver, trying a
// case-insensitive exact match before the fuzzy pass.
func (s *VisitorService) resolveHost(ctx context.Context, hostName string) (*models.Approver, error) {
	query := strings.TrimSpace(hostName)

	approver, err := s.approvers.FindByUsernameOrName(ctx, query)
	if err == nil {
		return approver, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up approver")
	}

	candidates, err := s.approvers.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvers")
	}

	pool := make([]match.Candidate, len(candidates))
	for i := range candidates {
		pool[i] = match.Candidate{DisplayName: candidates[i].Name, LoginName: candidates[i].Username}
	}

	idx, score, ok := match.Best(query, pool)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNoMatch,
			fmt.Sprintf("No matching approver found for '%s'. Please check the person's name.", hostName))
	}

	best := &candidates[idx]
	s.logger.Info("fuzzy host match",
		zap.String("query", query),
		zap.String("matched", best.Username),
		zap.Float64("score", score))
	return best, nil
}

// syncAppointment upserts the appointment row that shadows an
// appointment visit and returns the QR token for approvals.
func (s *VisitorService) syncAppointment(ctx context.Context, v *models.Visitor) (string, error) {
	extras := v.Extras()
	appt := &models.Appointment{
		VisitorID:         v.ID,
		VisitorName:       v.VisitorName,
		MobileNumber:      v.MobileNumber,
		EmailAddress:      v.EmailAddress,
		Company:           v.Company,
		PersonToMeet:      v.PersonToMeet,
		Purpose:           v.Purpose(),
		DateOfVisit:       extras.DateOfVisit,
		PreferredTimeSlot: extras.TimeSlot,
		CarryingItems:     extras.CarryingItems,
		AdditionalRemarks: extras.AdditionalRemarks,
		Source:            extras.Source,
	}
	if appt.Source == "" {
		appt.Source = "google_form"
	}

	var qrCode string
	switch v.Status {
	case models.StatusApproved:
		qrCode = s.newQRToken(v.ID)
		appt.Status = models.AppointmentConfirmed
		appt.QRCode = &qrCode
	case models.StatusRejected:
		appt.Status = models.AppointmentCancelled
	default:
		appt.Status = models.AppointmentPending
	}

	if err := s.appointments.UpsertForVisitor(ctx, appt); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save appointment")
	}
	return qrCode, nil
}

// newQRToken mints a fresh token on every approval so stale codes from
// earlier decisions stop scanning.
func (s *VisitorService) newQRToken(visitorID int64) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%d-%s", s.cfg.QRPrefix, visitorID, strings.ToUpper(hex.EncodeToString(buf)))
}

func (s *VisitorService) hostDisplayName(ctx context.Context, personToMeet string, decider *models.Approver) string {
	if approver, err := s.approvers.FindByUsernameOrName(ctx, personToMeet); err == nil {
		return approver.Name
	}
	if decider != nil {
		return decider.Name
	}
	return personToMeet
}

func imageExtension(contentType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	default:
		return "", false
	}
}
