package order

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeNotifyApproved  = "notify:transaction_approved"
	TypeNotifyRejected  = "notify:transaction_rejected"
	TypeNotifyCancelled = "notify:transaction_cancelled"
)

type NotificationPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// notify enqueues a domain event for the notification consumer. It is best
// effort: enqueue failure is logged and never fails the transition.
func (s *Service) notify(taskType string, ord *Order) {
	if s.enqueuer == nil || ord == nil {
		return
	}

	payload, err := json.Marshal(NotificationPayload{
		OrderID: ord.ID,
		UserID:  ord.UserID,
		EventID: ord.EventID,
		Status:  ord.Status().String(),
	})
	if err != nil {
		zap.L().Warn("failed to marshal notification payload", zap.String("order_id", ord.ID), zap.Error(err))
		return
	}

	if _, err := s.enqueuer.Enqueue(asynq.NewTask(taskType, payload), asynq.Queue("low")); err != nil {
		zap.L().Warn("failed to enqueue notification",
			zap.String("task_type", taskType),
			zap.String("order_id", ord.ID),
			zap.Error(err),
		)
	}
}
