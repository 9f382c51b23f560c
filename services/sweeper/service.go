package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"eventix/pkg/config"
	"eventix/pkg/db/option"
	"eventix/pkg/repository"
	"eventix/pkg/task"
	"eventix/services/order"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Service scans for orders stuck past their deadlines and enqueues one
// transition task per stale order. The actual state change happens in the
// order service, which re-checks status under lock, so a sweep racing a
// proof upload or an organizer action is harmless.
type Service struct {
	orders   repository.Repository[order.Order]
	enqueuer task.Enqueuer

	paymentWindow      time.Duration
	confirmationWindow time.Duration

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		orders:             repository.ProvideStore[order.Order](p.DB),
		enqueuer:           p.Enqueuer,
		paymentWindow:      p.Config.Checkout.PaymentWindow,
		confirmationWindow: p.Config.Checkout.ConfirmationWindow,
		now:                time.Now,
	}
}

// EnqueueStaleOrders runs both scans: PENDING orders with no payment proof
// older than the payment window, and PAID orders awaiting the organizer
// longer than the confirmation window. Each item is enqueued independently;
// a failed enqueue is logged and does not abort the sweep.
func (s *Service) EnqueueStaleOrders(ctx context.Context) error {
	now := s.now()

	pending, err := s.orders.Find(ctx, &order.Order{StatusID: int(order.StatusPending)},
		option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LT,
			Value:    now.Add(-s.paymentWindow),
		}),
	)
	if err != nil {
		return err
	}

	paid, err := s.orders.Find(ctx, &order.Order{StatusID: int(order.StatusPaid)},
		option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LT,
			Value:    now.Add(-s.confirmationWindow),
		}),
	)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(8)

	for _, ord := range pending {
		if ord.PaymentProofRef != nil {
			continue
		}
		orderID := ord.ID
		g.Go(func() error {
			s.enqueueTransition(TypeOrderExpire, orderID)
			return nil
		})
	}

	for _, ord := range paid {
		orderID := ord.ID
		g.Go(func() error {
			s.enqueueTransition(TypeOrderAutoCancel, orderID)
			return nil
		})
	}

	return g.Wait()
}

func (s *Service) enqueueTransition(taskType, orderID string) {
	payload, err := json.Marshal(TransitionPayload{OrderID: orderID})
	if err != nil {
		zap.L().Error("failed to marshal transition payload", zap.String("order_id", orderID), zap.Error(err))
		return
	}

	if _, err := s.enqueuer.Enqueue(
		asynq.NewTask(taskType, payload),
		asynq.Queue("critical"),
		asynq.MaxRetry(3),
	); err != nil {
		zap.L().Error("failed to enqueue transition",
			zap.String("task_type", taskType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

// EnqueueCatalogRefresh schedules the daily event lifecycle recompute.
func (s *Service) EnqueueCatalogRefresh(ctx context.Context) {
	if _, err := s.enqueuer.Enqueue(asynq.NewTask(TypeCatalogRefresh, nil)); err != nil {
		zap.L().Error("failed to enqueue catalog refresh", zap.Error(err))
	}
}
