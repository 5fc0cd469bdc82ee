package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/event"
)

// NotificationService tells submitters about decisions on their expenses
type NotificationService interface {
	// HandleEvent sends a message for approved, rejected and paid events; others are ignored
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	sender port.MessageSender
	logger Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(sender port.MessageSender, logger Logger) NotificationService {
	return &notificationServiceImpl{
		sender: sender,
		logger: logger,
	}
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}

	text := decisionMessage(evt)
	if text == "" {
		return nil
	}

	recipient := evt.GetPayloadString(event.KeySubmittedBy)
	if recipient == "" {
		s.logger.Info("Skipping notification without recipient", "expense_id", evt.ExpenseID, "event_type", evt.Type)
		return nil
	}

	if err := s.sender.SendText(ctx, recipient, text); err != nil {
		s.logger.Error("Failed to send decision notification",
			"expense_id", evt.ExpenseID,
			"recipient", recipient,
			"error", err,
		)
		return err
	}

	s.logger.Info("Decision notification sent", "expense_id", evt.ExpenseID, "event_type", evt.Type)
	return nil
}

func decisionMessage(evt *event.Event) string {
	title := evt.GetPayloadString(event.KeyTitle)
	amount := evt.GetPayloadString(event.KeyAmount)
	currency := evt.GetPayloadString(event.KeyCurrency)
	actor := evt.GetPayloadString(event.KeyActor)

	switch evt.Type {
	case event.TypeExpenseApproved:
		return fmt.Sprintf("Your expense %q (%s %s) was approved by %s.", title, amount, currency, actor)
	case event.TypeExpenseRejected:
		return fmt.Sprintf("Your expense %q (%s %s) was rejected by %s. Reason: %s",
			title, amount, currency, actor, evt.GetPayloadString(event.KeyReason))
	case event.TypeExpensePaid:
		return fmt.Sprintf("Your expense %q (%s %s) has been paid.", title, amount, currency)
	default:
		return ""
	}
}
