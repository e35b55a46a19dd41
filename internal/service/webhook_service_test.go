package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/models"
)

type fakeWebhookVisitors struct {
	byID    map[int64]*models.Visitor
	waiting *models.Visitor
	latest  *models.Visitor
	count   int
}

func (f *fakeWebhookVisitors) GetByIDForHost(ctx context.Context, id int64, username, name string) (*models.Visitor, error) {
	v, ok := f.byID[id]
	if !ok || (v.PersonToMeet != username && v.PersonToMeet != name) {
		return nil, sql.ErrNoRows
	}
	return v, nil
}

func (f *fakeWebhookVisitors) LatestWaitingForHost(ctx context.Context, username, name string) (*models.Visitor, error) {
	if f.waiting == nil {
		return nil, sql.ErrNoRows
	}
	return f.waiting, nil
}

func (f *fakeWebhookVisitors) LatestForHost(ctx context.Context, username, name string) (*models.Visitor, error) {
	if f.latest == nil {
		return nil, sql.ErrNoRows
	}
	return f.latest, nil
}

func (f *fakeWebhookVisitors) CountForHost(ctx context.Context, username, name string) (int, error) {
	return f.count, nil
}

type fakeWebhookApprovers struct {
	approver *models.Approver
}

func (f *fakeWebhookApprovers) FindByPhoneLike(ctx context.Context, digits string) (*models.Approver, error) {
	if f.approver == nil {
		return nil, sql.ErrNoRows
	}
	return f.approver, nil
}

func (f *fakeWebhookApprovers) FindByExactPhone(ctx context.Context, phone string) (*models.Approver, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeWebhookApprovers) ListWithPhones(ctx context.Context) ([]models.Approver, error) {
	return nil, nil
}

type recordedDecision struct {
	visitorID int64
	req       models.DecisionRequest
}

type fakeDecider struct {
	visitors  *fakeWebhookVisitors
	decisions []recordedDecision
}

func (f *fakeDecider) Decide(ctx context.Context, decider *models.Approver, id int64, req models.DecisionRequest) (*models.Visitor, error) {
	f.decisions = append(f.decisions, recordedDecision{visitorID: id, req: req})
	v := f.visitors.byID[id]
	v.Status = req.Status
	v.RejectionReason = req.RejectionReason
	return v, nil
}

func webhookFixture() (*WebhookService, *fakeWebhookVisitors, *fakeDecider) {
	phone := "+919876543210"
	approver := &models.Approver{ID: 1, Username: "priya", Name: "Priya Sharma", PhNo: &phone, IsActive: true}
	visitor := &models.Visitor{
		ID:           20250826101500,
		VisitorName:  "Ravi Kumar",
		MobileNumber: "+919812345678",
		PersonToMeet: "priya",
		Status:       models.StatusWaiting,
		CheckInTime:  time.Now(),
	}
	visitors := &fakeWebhookVisitors{
		byID:    map[int64]*models.Visitor{visitor.ID: visitor},
		waiting: visitor,
		latest:  visitor,
		count:   1,
	}
	decider := &fakeDecider{visitors: visitors}
	svc := NewWebhookService(visitors, &fakeWebhookApprovers{approver: approver}, decider,
		NewMemoryPendingStore(time.Minute), zap.NewNop())
	return svc, visitors, decider
}

func TestWebhookApproveLatestWaiting(t *testing.T) {
	svc, _, decider := webhookFixture()

	reply := svc.HandleReply(context.Background(), "9876543210", "approve")
	assert.Equal(t, "Visitor 20250826101500 has been approved.\nName: Ravi Kumar\nStatus: APPROVED", reply)
	require.Len(t, decider.decisions, 1)
	assert.Equal(t, models.StatusApproved, decider.decisions[0].req.Status)
}

func TestWebhookApproveCaseInsensitivePartial(t *testing.T) {
	svc, _, decider := webhookFixture()

	reply := svc.HandleReply(context.Background(), "9876543210", "appro")
	assert.Contains(t, reply, "has been approved")
	require.Len(t, decider.decisions, 1)
}

func TestWebhookApproveWithExplicitID(t *testing.T) {
	svc, _, decider := webhookFixture()

	reply := svc.HandleReply(context.Background(), "9876543210", "APPROVED 20250826101500")
	assert.Contains(t, reply, "Visitor 20250826101500 has been approved")
	require.Len(t, decider.decisions, 1)
	assert.Equal(t, int64(20250826101500), decider.decisions[0].visitorID)
}

func TestWebhookExplicitIDNotOwned(t *testing.T) {
	svc, visitors, decider := webhookFixture()
	visitors.byID[20250826101500].PersonToMeet = "someone-else"

	reply := svc.HandleReply(context.Background(), "9876543210", "APPROVED 20250826101500")
	assert.Equal(t, "Visitor 20250826101500 not found or you don't have permission to approve it.", reply)
	assert.Empty(t, decider.decisions)
}

func TestWebhookRejectThenReason(t *testing.T) {
	svc, visitors, decider := webhookFixture()

	reply := svc.HandleReply(context.Background(), "9876543210", "REJECT")
	assert.Contains(t, reply, "Visitor 20250826101500 rejection initiated.")
	assert.Contains(t, reply, "Please provide the reason for rejection.")
	assert.Empty(t, decider.decisions)

	reply = svc.HandleReply(context.Background(), "9876543210", "Not available today")
	assert.Equal(t, "Visitor 20250826101500 has been rejected.\nReason: Not available today\nStatus: REJECTED", reply)
	require.Len(t, decider.decisions, 1)
	assert.Equal(t, models.StatusRejected, decider.decisions[0].req.Status)
	require.NotNil(t, decider.decisions[0].req.RejectionReason)
	assert.Equal(t, "Not available today", *decider.decisions[0].req.RejectionReason)

	// The pending state is consumed; the next keyword starts fresh.
	visitors.byID[20250826101500].Status = models.StatusWaiting
	reply = svc.HandleReply(context.Background(), "9876543210", "approve")
	assert.Contains(t, reply, "has been approved")
}

func TestWebhookPendingConsumesNextMessage(t *testing.T) {
	svc, _, decider := webhookFixture()

	_ = svc.HandleReply(context.Background(), "9876543210", "REJECT")

	// Once a rejection is pending, the next message is the reason even
	// when it happens to contain a keyword.
	reply := svc.HandleReply(context.Background(), "9876543210", "YES")
	assert.Contains(t, reply, "has been rejected")
	require.Len(t, decider.decisions, 1)
	assert.Equal(t, models.StatusRejected, decider.decisions[0].req.Status)
}

func TestWebhookPendingRejectionGoneVisitor(t *testing.T) {
	svc, visitors, _ := webhookFixture()

	_ = svc.HandleReply(context.Background(), "9876543210", "REJECT")
	visitors.byID[20250826101500].Status = models.StatusApproved

	reply := svc.HandleReply(context.Background(), "9876543210", "He left already")
	assert.Equal(t, "Visitor not found or already processed. Please start over.", reply)

	// Pending state cleared, keyword replies work again.
	reply = svc.HandleReply(context.Background(), "9876543210", "gibberish")
	assert.Contains(t, reply, "Invalid reply.")
}

func TestWebhookUnknownKeyword(t *testing.T) {
	svc, _, decider := webhookFixture()

	reply := svc.HandleReply(context.Background(), "9876543210", "what is this")
	assert.Contains(t, reply, "Invalid reply. Reply with:")
	assert.Contains(t, reply, "APPROVED, APPROVE, YES, OK, or Y")
	assert.Empty(t, decider.decisions)
}

func TestWebhookUnregisteredPhone(t *testing.T) {
	svc := NewWebhookService(&fakeWebhookVisitors{}, &fakeWebhookApprovers{}, &fakeDecider{},
		NewMemoryPendingStore(time.Minute), zap.NewNop())

	reply := svc.HandleReply(context.Background(), "1234567890", "APPROVE")
	assert.Equal(t, "Sorry, your phone number is not registered. Please contact admin.", reply)
}

func TestWebhookNoVisitorsAtAll(t *testing.T) {
	phone := "+919876543210"
	approver := &models.Approver{ID: 1, Username: "priya", Name: "Priya Sharma", PhNo: &phone}
	visitors := &fakeWebhookVisitors{byID: map[int64]*models.Visitor{}}
	svc := NewWebhookService(visitors, &fakeWebhookApprovers{approver: approver}, &fakeDecider{visitors: visitors},
		NewMemoryPendingStore(time.Minute), zap.NewNop())

	reply := svc.HandleReply(context.Background(), "9876543210", "APPROVE")
	assert.Equal(t, "No pending visitor requests found. Please include visitor ID in your reply.", reply)
}
