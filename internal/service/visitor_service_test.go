package service

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

type fakeVisitorRepo struct {
	visitors map[int64]*models.Visitor
	created  []*models.Visitor
}

func newFakeVisitorRepo() *fakeVisitorRepo {
	return &fakeVisitorRepo{visitors: make(map[int64]*models.Visitor)}
}

func (f *fakeVisitorRepo) Create(ctx context.Context, v *models.Visitor) error {
	clone := *v
	f.visitors[v.ID] = &clone
	f.created = append(f.created, &clone)
	return nil
}

func (f *fakeVisitorRepo) GetByID(ctx context.Context, id int64) (*models.Visitor, error) {
	v, ok := f.visitors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *v
	return &clone, nil
}

func (f *fakeVisitorRepo) List(ctx context.Context, filter models.VisitorFilter) ([]models.Visitor, int, error) {
	out := make([]models.Visitor, 0, len(f.visitors))
	for _, v := range f.visitors {
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (f *fakeVisitorRepo) ListByPhone(ctx context.Context, normalized string) ([]models.Visitor, error) {
	var out []models.Visitor
	for _, v := range f.visitors {
		if strings.HasSuffix(v.MobileNumber, normalized) {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeVisitorRepo) ListActive(ctx context.Context) ([]models.Visitor, error) {
	var out []models.Visitor
	for _, v := range f.visitors {
		if v.Status == models.StatusApproved && v.CheckOutTime == nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeVisitorRepo) Update(ctx context.Context, v *models.Visitor) error {
	clone := *v
	f.visitors[v.ID] = &clone
	return nil
}

func (f *fakeVisitorRepo) UpdateStatus(ctx context.Context, id int64, status models.VisitorStatus, rejectionReason *string) error {
	v := f.visitors[id]
	v.Status = status
	v.RejectionReason = rejectionReason
	return nil
}

func (f *fakeVisitorRepo) UpdateStatusIfWaiting(ctx context.Context, id int64, status models.VisitorStatus, rejectionReason *string) (bool, error) {
	v := f.visitors[id]
	if v.Status != models.StatusWaiting {
		return false, nil
	}
	v.Status = status
	v.RejectionReason = rejectionReason
	return true, nil
}

func (f *fakeVisitorRepo) SetImageURL(ctx context.Context, id int64, imgURL string) error {
	f.visitors[id].ImgURL = &imgURL
	return nil
}

func (f *fakeVisitorRepo) Delete(ctx context.Context, id int64) error {
	delete(f.visitors, id)
	return nil
}

func (f *fakeVisitorRepo) Stats(ctx context.Context) (*models.VisitorStats, error) {
	return &models.VisitorStats{Total: len(f.visitors)}, nil
}

type fakeApproverDirectory struct {
	approvers []models.Approver
}

func (f *fakeApproverDirectory) FindByUsernameOrName(ctx context.Context, q string) (*models.Approver, error) {
	for i := range f.approvers {
		if strings.EqualFold(f.approvers[i].Username, q) || strings.EqualFold(f.approvers[i].Name, q) {
			return &f.approvers[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApproverDirectory) ListActive(ctx context.Context) ([]models.Approver, error) {
	return f.approvers, nil
}

type fakeAppointmentStore struct {
	upserted []*models.Appointment
}

func (f *fakeAppointmentStore) UpsertForVisitor(ctx context.Context, a *models.Appointment) error {
	clone := *a
	f.upserted = append(f.upserted, &clone)
	return nil
}

type fakeNotifier struct {
	checkIns   []models.Visitor
	approvals  []models.Visitor
	rejections []models.Visitor
	qrCodes    []string
	reasons    []*string
}

func (f *fakeNotifier) NotifyCheckIn(v models.Visitor) { f.checkIns = append(f.checkIns, v) }

func (f *fakeNotifier) NotifyApproval(v models.Visitor, approverName, qrCode string) {
	f.approvals = append(f.approvals, v)
	f.qrCodes = append(f.qrCodes, qrCode)
}

func (f *fakeNotifier) NotifyRejection(v models.Visitor, reason *string) {
	f.rejections = append(f.rejections, v)
	f.reasons = append(f.reasons, reason)
}

func visitorFixture(cfg VisitorConfig) (*VisitorService, *fakeVisitorRepo, *fakeAppointmentStore, *fakeNotifier) {
	repo := newFakeVisitorRepo()
	appointments := &fakeAppointmentStore{}
	notifier := &fakeNotifier{}
	directory := &fakeApproverDirectory{approvers: []models.Approver{
		{ID: 1, Username: "priya", Name: "Priya Sharma", IsActive: true},
		{ID: 2, Username: "yash", Name: "Yash Gawadi", IsActive: true},
	}}
	svc := NewVisitorService(repo, directory, appointments, notifier, nil, nil,
		validator.New(), zap.NewNop(), cfg)
	svc.now = func() time.Time { return time.Date(2025, 8, 26, 10, 15, 0, 0, time.UTC) }
	return svc, repo, appointments, notifier
}

func TestCheckInDerivesVisitorNumber(t *testing.T) {
	svc, repo, _, notifier := visitorFixture(VisitorConfig{})

	v, err := svc.CheckIn(context.Background(), models.CheckInRequest{
		VisitorName:   "Ravi Kumar",
		MobileNumber:  "9812345678",
		PersonToMeet:  "priya",
		ReasonToVisit: "Delivery",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20250826101500), v.ID)
	assert.Equal(t, models.StatusWaiting, v.Status)
	require.Len(t, repo.created, 1)
	require.Len(t, notifier.checkIns, 1)
	assert.Equal(t, v.ID, notifier.checkIns[0].ID)
}

func TestCheckInRejectsInvalidPayload(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	_, err := svc.CheckIn(context.Background(), models.CheckInRequest{VisitorName: "Ravi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFormIntakeExactHostMatch(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	v, err := svc.FormIntake(context.Background(), models.FormIntakeRequest{
		VisitorName:  "Ravi Kumar",
		MobileNumber: "9812345678",
		PersonToMeet: "Priya Sharma",
		Purpose:      "Vendor meeting",
	})
	require.NoError(t, err)
	assert.Equal(t, "priya", v.PersonToMeet)
	assert.Equal(t, "[APPOINTMENT] Vendor meeting", v.ReasonToVisit)
	assert.True(t, v.IsAppointment())
	assert.Equal(t, "Vendor meeting", v.Purpose())
}

func TestFormIntakeFuzzyHostMatch(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	v, err := svc.FormIntake(context.Background(), models.FormIntakeRequest{
		VisitorName:  "Ravi Kumar",
		MobileNumber: "9812345678",
		PersonToMeet: "yash gawdi",
		Purpose:      "Interview",
	})
	require.NoError(t, err)
	assert.Equal(t, "yash", v.PersonToMeet)
}

func TestFormIntakeNoHostMatch(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	_, err := svc.FormIntake(context.Background(), models.FormIntakeRequest{
		VisitorName:  "Ravi Kumar",
		MobileNumber: "9812345678",
		PersonToMeet: "nobody here",
		Purpose:      "Interview",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNoMatch.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "No matching approver found for 'nobody here'")
}

func TestDecideApproveAppointmentMintsQR(t *testing.T) {
	svc, repo, appointments, notifier := visitorFixture(VisitorConfig{QRPrefix: "APT"})
	extras := `{"date_of_visit":"2025-08-28","time_slot":"10:00 AM","source":"google_form"}`
	repo.visitors[20250826101500] = &models.Visitor{
		ID:            20250826101500,
		VisitorName:   "Ravi Kumar",
		MobileNumber:  "+919812345678",
		PersonToMeet:  "priya",
		ReasonToVisit: "[APPOINTMENT] Vendor meeting",
		ExtraData:     &extras,
		Status:        models.StatusWaiting,
	}

	decider := &models.Approver{ID: 1, Username: "priya", Name: "Priya Sharma"}
	v, err := svc.Decide(context.Background(), decider, 20250826101500, models.DecisionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, v.Status)
	assert.Nil(t, v.RejectionReason)

	require.Len(t, appointments.upserted, 1)
	appt := appointments.upserted[0]
	assert.Equal(t, models.AppointmentConfirmed, appt.Status)
	require.NotNil(t, appt.QRCode)
	assert.Regexp(t, regexp.MustCompile(`^APT-20250826101500-[0-9A-F]{8}$`), *appt.QRCode)
	assert.Equal(t, "Vendor meeting", appt.Purpose)
	require.NotNil(t, appt.DateOfVisit)
	assert.Equal(t, "2025-08-28", *appt.DateOfVisit)

	require.Len(t, notifier.approvals, 1)
	assert.Equal(t, *appt.QRCode, notifier.qrCodes[0])
}

func TestDecideApproveMintsFreshQREachTime(t *testing.T) {
	svc, repo, appointments, _ := visitorFixture(VisitorConfig{QRPrefix: "APT"})
	repo.visitors[20250826101500] = &models.Visitor{
		ID:            20250826101500,
		VisitorName:   "Ravi Kumar",
		MobileNumber:  "+919812345678",
		PersonToMeet:  "priya",
		ReasonToVisit: "[APPOINTMENT] Vendor meeting",
		Status:        models.StatusWaiting,
	}

	decider := &models.Approver{ID: 1, Username: "priya", Name: "Priya Sharma"}
	_, err := svc.Decide(context.Background(), decider, 20250826101500, models.DecisionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	_, err = svc.Decide(context.Background(), decider, 20250826101500, models.DecisionRequest{Status: models.StatusApproved})
	require.NoError(t, err)

	require.Len(t, appointments.upserted, 2)
	assert.NotEqual(t, *appointments.upserted[0].QRCode, *appointments.upserted[1].QRCode)
}

func TestDecideRejectAppointment(t *testing.T) {
	svc, repo, appointments, notifier := visitorFixture(VisitorConfig{})
	repo.visitors[20250826101500] = &models.Visitor{
		ID:            20250826101500,
		VisitorName:   "Ravi Kumar",
		MobileNumber:  "+919812345678",
		PersonToMeet:  "priya",
		ReasonToVisit: "[APPOINTMENT] Vendor meeting",
		Status:        models.StatusWaiting,
	}

	reason := "Meeting cancelled"
	v, err := svc.Decide(context.Background(), nil, 20250826101500, models.DecisionRequest{
		Status:          models.StatusRejected,
		RejectionReason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, v.Status)
	require.NotNil(t, v.RejectionReason)
	assert.Equal(t, reason, *v.RejectionReason)

	require.Len(t, appointments.upserted, 1)
	assert.Equal(t, models.AppointmentCancelled, appointments.upserted[0].Status)
	assert.Nil(t, appointments.upserted[0].QRCode)

	require.Len(t, notifier.rejections, 1)
	require.NotNil(t, notifier.reasons[0])
	assert.Equal(t, reason, *notifier.reasons[0])
}

func TestDecideApprovalClearsRejectionReason(t *testing.T) {
	svc, repo, _, _ := visitorFixture(VisitorConfig{})
	stale := "was rejected before"
	repo.visitors[20250826101500] = &models.Visitor{
		ID:              20250826101500,
		VisitorName:     "Ravi Kumar",
		MobileNumber:    "+919812345678",
		PersonToMeet:    "priya",
		ReasonToVisit:   "Delivery",
		RejectionReason: &stale,
		Status:          models.StatusRejected,
	}

	v, err := svc.Decide(context.Background(), nil, 20250826101500, models.DecisionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, v.Status)
	assert.Nil(t, v.RejectionReason)
}

func TestDecideFinalRejectsSecondDecision(t *testing.T) {
	svc, repo, _, _ := visitorFixture(VisitorConfig{DecisionsFinal: true})
	repo.visitors[20250826101500] = &models.Visitor{
		ID:            20250826101500,
		VisitorName:   "Ravi Kumar",
		MobileNumber:  "+919812345678",
		PersonToMeet:  "priya",
		ReasonToVisit: "Delivery",
		Status:        models.StatusApproved,
	}

	_, err := svc.Decide(context.Background(), nil, 20250826101500, models.DecisionRequest{Status: models.StatusRejected})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDecisionFinal.Code, appErrors.FromError(err).Code)
}

func TestDecideUnknownVisitor(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	_, err := svc.Decide(context.Background(), nil, 42, models.DecisionRequest{Status: models.StatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetByNumberValidatesFormat(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	_, err := svc.GetByNumber(context.Background(), "20251301120000")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.GetByNumber(context.Background(), "not-a-number")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportCSV(t *testing.T) {
	svc, repo, _, _ := visitorFixture(VisitorConfig{})
	repo.visitors[20250826101500] = &models.Visitor{
		ID:            20250826101500,
		VisitorName:   "Ravi Kumar",
		MobileNumber:  "+919812345678",
		PersonToMeet:  "priya",
		ReasonToVisit: "Delivery",
		Status:        models.StatusWaiting,
		CheckInTime:   time.Date(2025, 8, 26, 10, 15, 0, 0, time.UTC),
	}

	data, filename, contentType, err := svc.Export(context.Background(), models.VisitorFilter{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, "visitors_20250826_101500.csv", filename)
	assert.Contains(t, string(data), "Ravi Kumar")
	assert.Contains(t, string(data), "20250826101500")
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc, _, _, _ := visitorFixture(VisitorConfig{})

	_, _, _, err := svc.Export(context.Background(), models.VisitorFilter{}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
