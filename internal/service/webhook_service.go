package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gatewise/vms-api/internal/models"
	"github.com/gatewise/vms-api/pkg/sms"
)

var visitorIDPattern = regexp.MustCompile(`\d{14}`)

var approveKeywords = []string{"APPROVED", "APPROVE", "YES", "OK", "Y", "APPRO", "APROV"}
var rejectKeywords = []string{"REJECTED", "REJECT", "NO", "DENY", "N", "REJ"}

const (
	replyNotRegistered = "Sorry, your phone number is not registered. Please contact admin."
	replyUsage         = "Invalid reply. Reply with:\n" +
		"- APPROVED, APPROVE, YES, OK, or Y (to approve)\n" +
		"- REJECT, REJECTED, NO, DENY, or N (to reject - you'll be asked for reason)\n" +
		"Or include visitor ID: APPROVED 20260102090655\n" +
		"(Case-insensitive - 'approve', 'Appro', 'REJECT', etc. all work)"
	replyStartOver   = "Visitor not found or already processed. Please start over."
	replyUpdateError = "Error updating visitor status. Please try again."
	replyGeneralErr  = "An error occurred. Please try again or use the dashboard."
)

type webhookVisitorRepo interface {
	GetByIDForHost(ctx context.Context, id int64, username, name string) (*models.Visitor, error)
	LatestWaitingForHost(ctx context.Context, username, name string) (*models.Visitor, error)
	LatestForHost(ctx context.Context, username, name string) (*models.Visitor, error)
	CountForHost(ctx context.Context, username, name string) (int, error)
}

type webhookApproverRepo interface {
	FindByPhoneLike(ctx context.Context, digits string) (*models.Approver, error)
	FindByExactPhone(ctx context.Context, phone string) (*models.Approver, error)
	ListWithPhones(ctx context.Context) ([]models.Approver, error)
}

type decisionEngine interface {
	Decide(ctx context.Context, decider *models.Approver, id int64, req models.DecisionRequest) (*models.Visitor, error)
}

// WebhookService interprets inbound SMS replies from hosts. A host can
// approve with a keyword, optionally naming a visitor, or start a
// two-step rejection where the next message supplies the reason.
type WebhookService struct {
	visitors  webhookVisitorRepo
	approvers webhookApproverRepo
	decisions decisionEngine
	pending   PendingStore
	logger    *zap.Logger
}

// NewWebhookService constructs the interpreter.
func NewWebhookService(
	visitors webhookVisitorRepo,
	approvers webhookApproverRepo,
	decisions decisionEngine,
	pending PendingStore,
	logger *zap.Logger,
) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pending == nil {
		pending = NewMemoryPendingStore(0)
	}
	return &WebhookService{
		visitors:  visitors,
		approvers: approvers,
		decisions: decisions,
		pending:   pending,
		logger:    logger,
	}
}

// HandleReply processes one inbound message and returns the reply text.
// Replies never surface as errors; every outcome maps to a message for
// the sender.
func (s *WebhookService) HandleReply(ctx context.Context, from, body string) string {
	phone := sms.FormatE164(from)
	original := strings.TrimSpace(body)
	upper := strings.ToUpper(original)

	approver, err := s.findApproverByPhone(ctx, phone)
	if err != nil {
		s.logger.Error("webhook approver lookup failed", zap.String("from", phone), zap.Error(err))
		return replyGeneralErr
	}
	if approver == nil {
		s.logger.Warn("sms reply from unregistered phone", zap.String("from", phone))
		return replyNotRegistered
	}

	// An explicit 14-digit visitor number anywhere in the message
	// targets that visit; the rest of the text carries the intent.
	var explicitID string
	if m := visitorIDPattern.FindString(upper); m != "" {
		explicitID = m
	}
	withoutID := strings.TrimSpace(visitorIDPattern.ReplaceAllString(upper, ""))

	if pending, err := s.pending.Get(ctx, phone); err != nil {
		s.logger.Error("pending rejection lookup failed", zap.String("from", phone), zap.Error(err))
		return replyGeneralErr
	} else if pending != nil {
		return s.completeRejection(ctx, approver, phone, pending.VisitorID, original)
	}

	var intent models.VisitorStatus
	switch {
	case containsAny(withoutID, approveKeywords):
		if err := s.pending.Delete(ctx, phone); err != nil {
			s.logger.Warn("failed to clear pending rejection", zap.String("from", phone), zap.Error(err))
		}
		intent = models.StatusApproved
	case containsAny(withoutID, rejectKeywords):
		intent = models.StatusRejected
	default:
		s.logger.Info("unrecognized sms reply",
			zap.String("from", phone),
			zap.String("approver", approver.Username))
		return replyUsage
	}

	visitor, reply := s.resolveTarget(ctx, approver, explicitID)
	if visitor == nil {
		return reply
	}

	if intent == models.StatusRejected {
		err := s.pending.Set(ctx, phone, PendingRejection{VisitorID: visitor.ID, CreatedAt: time.Now().UTC()})
		if err != nil {
			s.logger.Error("failed to store pending rejection", zap.String("from", phone), zap.Error(err))
			return replyGeneralErr
		}
		return fmt.Sprintf("Visitor %d rejection initiated.\n"+
			"Please provide the reason for rejection.\n"+
			"Reply with the reason (e.g., 'Not available today', 'Meeting cancelled', etc.)", visitor.ID)
	}

	updated, err := s.decisions.Decide(ctx, approver, visitor.ID, models.DecisionRequest{Status: models.StatusApproved})
	if err != nil {
		s.logger.Error("sms approval failed",
			zap.Int64("visitor_id", visitor.ID),
			zap.String("approver", approver.Username),
			zap.Error(err))
		return replyUpdateError
	}

	s.logger.Info("visitor approved via sms",
		zap.Int64("visitor_id", updated.ID),
		zap.String("approver", approver.Username))
	return fmt.Sprintf("Visitor %d has been approved.\nName: %s\nStatus: APPROVED", updated.ID, updated.VisitorName)
}

// completeRejection treats the message as the reason for the rejection
// the host initiated with their previous reply.
func (s *WebhookService) completeRejection(ctx context.Context, approver *models.Approver, phone string, visitorID int64, reason string) string {
	visitor, err := s.visitors.GetByIDForHost(ctx, visitorID, approver.Username, approver.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("pending visitor lookup failed", zap.Int64("visitor_id", visitorID), zap.Error(err))
		return replyGeneralErr
	}
	if visitor == nil || visitor.Status != models.StatusWaiting {
		if err := s.pending.Delete(ctx, phone); err != nil {
			s.logger.Warn("failed to clear pending rejection", zap.String("from", phone), zap.Error(err))
		}
		return replyStartOver
	}

	_, err = s.decisions.Decide(ctx, approver, visitor.ID, models.DecisionRequest{
		Status:          models.StatusRejected,
		RejectionReason: &reason,
	})
	if err != nil {
		s.logger.Error("sms rejection failed",
			zap.Int64("visitor_id", visitor.ID),
			zap.String("approver", approver.Username),
			zap.Error(err))
		return replyUpdateError
	}

	if err := s.pending.Delete(ctx, phone); err != nil {
		s.logger.Warn("failed to clear pending rejection", zap.String("from", phone), zap.Error(err))
	}

	s.logger.Info("visitor rejected via sms",
		zap.Int64("visitor_id", visitor.ID),
		zap.String("approver", approver.Username))
	return fmt.Sprintf("Visitor %d has been rejected.\nReason: %s\nStatus: REJECTED", visitor.ID, reason)
}

// resolveTarget picks the visit a keyword-only reply refers to: the
// explicit visitor number when given, otherwise the host's most recent
// WAITING visit, falling back to their most recent visit of any status.
func (s *WebhookService) resolveTarget(ctx context.Context, approver *models.Approver, explicitID string) (*models.Visitor, string) {
	if explicitID != "" {
		id, err := models.ParseVisitorID(explicitID)
		if err != nil {
			return nil, fmt.Sprintf("Visitor %s not found or you don't have permission to approve it.", explicitID)
		}
		visitor, err := s.visitors.GetByIDForHost(ctx, id, approver.Username, approver.Name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Sprintf("Visitor %s not found or you don't have permission to approve it.", explicitID)
			}
			s.logger.Error("visitor lookup failed", zap.Int64("visitor_id", id), zap.Error(err))
			return nil, replyGeneralErr
		}
		return visitor, ""
	}

	visitor, err := s.visitors.LatestWaitingForHost(ctx, approver.Username, approver.Name)
	if err == nil {
		return visitor, ""
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("waiting visitor lookup failed", zap.String("approver", approver.Username), zap.Error(err))
		return nil, replyGeneralErr
	}

	visitor, err = s.visitors.LatestForHost(ctx, approver.Username, approver.Name)
	if err == nil {
		s.logger.Warn("no waiting visits, using most recent",
			zap.Int64("visitor_id", visitor.ID),
			zap.String("status", string(visitor.Status)))
		return visitor, ""
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("visitor lookup failed", zap.String("approver", approver.Username), zap.Error(err))
		return nil, replyGeneralErr
	}

	count, err := s.visitors.CountForHost(ctx, approver.Username, approver.Name)
	if err != nil {
		s.logger.Error("visitor count failed", zap.String("approver", approver.Username), zap.Error(err))
		return nil, replyGeneralErr
	}
	if count > 0 {
		return nil, fmt.Sprintf("You have %d visitor(s), but none are pending approval.\n"+
			"Please include visitor ID in your reply: APPROVED [VISITOR_ID]", count)
	}
	return nil, "No pending visitor requests found. Please include visitor ID in your reply."
}

// findApproverByPhone matches the sender to a host: a LIKE match on the
// last 10 digits first, then the exact stored value, then a normalized
// comparison across every approver with a phone on file.
func (s *WebhookService) findApproverByPhone(ctx context.Context, phone string) (*models.Approver, error) {
	normalized := sms.NormalizeForMatching(phone)

	approver, err := s.approvers.FindByPhoneLike(ctx, normalized)
	if err == nil {
		return approver, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	approver, err = s.approvers.FindByExactPhone(ctx, phone)
	if err == nil {
		return approver, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	all, err := s.approvers.ListWithPhones(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].PhNo == nil {
			continue
		}
		if sms.NormalizeForMatching(*all[i].PhNo) == normalized {
			return &all[i], nil
		}
	}
	return nil, nil
}

func containsAny(message string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}
