package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"eventix/pkg/errutil"
	"eventix/services/catalog"
	"eventix/services/order"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Task struct {
	order   *order.Service
	catalog *catalog.Service
}

type TaskParams struct {
	fx.In
	Order   *order.Service
	Catalog *catalog.Service
}

func NewTask(p TaskParams) *Task {
	return &Task{
		order:   p.Order,
		catalog: p.Catalog,
	}
}

func (t *Task) HandleOrderExpire(ctx context.Context, tk *asynq.Task) error {
	var payload TransitionPayload
	if err := json.Unmarshal(tk.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", tk.Type()),
		zap.String("order_id", payload.OrderID),
	)

	if _, err := t.order.Expire(ctx, payload.OrderID); err != nil {
		if settled(err) {
			zapLog.Info("order already transitioned, skipping", zap.Error(err))
			return nil
		}
		zapLog.Error("failed to expire order", zap.Error(err))
		return err
	}

	zapLog.Info("order expired")
	return nil
}

func (t *Task) HandleOrderAutoCancel(ctx context.Context, tk *asynq.Task) error {
	var payload TransitionPayload
	if err := json.Unmarshal(tk.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", tk.Type()),
		zap.String("order_id", payload.OrderID),
	)

	if _, err := t.order.AutoCancel(ctx, payload.OrderID); err != nil {
		if settled(err) {
			zapLog.Info("order already transitioned, skipping", zap.Error(err))
			return nil
		}
		zapLog.Error("failed to auto-cancel order", zap.Error(err))
		return err
	}

	zapLog.Info("order auto-cancelled")
	return nil
}

func (t *Task) HandleCatalogRefresh(ctx context.Context, tk *asynq.Task) error {
	changed, err := t.catalog.RefreshLifecycle(ctx)
	if err != nil {
		zap.L().Error("failed to refresh event lifecycle", zap.Error(err))
		return err
	}

	zap.L().Info("event lifecycle refreshed", zap.Int64("changed", changed))
	return nil
}

// settled reports whether a transition failed because the order is already
// past the expected source state or gone. Neither is worth a retry.
func settled(err error) bool {
	var be errutil.BaseError
	if !errors.As(err, &be) {
		return false
	}
	return be.Status() == errutil.StatusConflict || be.Status() == errutil.StatusNotFound
}

func RegisterHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(TypeOrderExpire, t.HandleOrderExpire)
	mux.HandleFunc(TypeOrderAutoCancel, t.HandleOrderAutoCancel)
	mux.HandleFunc(TypeCatalogRefresh, t.HandleCatalogRefresh)
}
