package sweeper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventix/pkg/repository"
	"eventix/services/catalog"
	"eventix/services/order"
	"eventix/services/testutil"
	"eventix/services/voucher"
	"eventix/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type enqueuerMock struct {
	tasks []*asynq.Task
	err   error
}

func (m *enqueuerMock) Enqueue(t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func (m *enqueuerMock) typesByOrder(t *testing.T) map[string]string {
	t.Helper()

	out := make(map[string]string, len(m.tasks))
	for _, tk := range m.tasks {
		var p TransitionPayload
		require.NoError(t, json.Unmarshal(tk.Payload(), &p))
		out[p.OrderID] = tk.Type()
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := testutil.NewTestDB(t,
		&catalog.Event{},
		&wallet.Point{},
		&wallet.Coupon{},
		&voucher.Voucher{},
		&order.PaymentStatus{},
		&order.Order{},
		&order.InstrumentAllocation{},
	)
	require.NoError(t, order.SeedPaymentStatuses(db))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, id string, status order.Status, age time.Duration, proof *string) {
	t.Helper()

	require.NoError(t, db.Create(&order.Order{
		ID:              id,
		UserID:          "u1",
		EventID:         "evt-1",
		Quantity:        1,
		BaseAmount:      100_000,
		FinalAmount:     100_000,
		StatusID:        int(status),
		PaymentProofRef: proof,
		CreatedAt:       time.Now().Add(-age),
	}).Error)
}

func TestEnqueueStaleOrders(t *testing.T) {
	db := newTestDB(t)
	enq := &enqueuerMock{}
	svc := &Service{
		orders:             repository.ProvideStore[order.Order](db),
		enqueuer:           enq,
		paymentWindow:      2 * time.Hour,
		confirmationWindow: 72 * time.Hour,
		now:                time.Now,
	}

	proof := "proof-1"
	seedOrder(t, db, "ord-stale-pending", order.StatusPending, 3*time.Hour, nil)
	seedOrder(t, db, "ord-fresh-pending", order.StatusPending, time.Hour, nil)
	seedOrder(t, db, "ord-stale-paid", order.StatusPaid, 80*time.Hour, &proof)
	seedOrder(t, db, "ord-fresh-paid", order.StatusPaid, 24*time.Hour, &proof)
	seedOrder(t, db, "ord-done", order.StatusDone, 200*time.Hour, &proof)

	require.NoError(t, svc.EnqueueStaleOrders(context.Background()))

	got := enq.typesByOrder(t)
	require.Len(t, got, 2)
	require.Equal(t, TypeOrderExpire, got["ord-stale-pending"])
	require.Equal(t, TypeOrderAutoCancel, got["ord-stale-paid"])
}

func TestEnqueueSkipsPendingWithProof(t *testing.T) {
	// A PENDING order that somehow carries a proof is left for the upload
	// path to move forward, never expired.
	db := newTestDB(t)
	enq := &enqueuerMock{}
	svc := &Service{
		orders:             repository.ProvideStore[order.Order](db),
		enqueuer:           enq,
		paymentWindow:      2 * time.Hour,
		confirmationWindow: 72 * time.Hour,
		now:                time.Now,
	}

	proof := "proof-1"
	seedOrder(t, db, "ord-pending-proof", order.StatusPending, 5*time.Hour, &proof)

	require.NoError(t, svc.EnqueueStaleOrders(context.Background()))
	require.Empty(t, enq.tasks)
}

func newTestTask(t *testing.T) (*Task, *order.Service, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	orderSvc := order.NewService(order.ServiceParams{DB: db, Node: node})
	catalogSvc := catalog.NewService(catalog.ServiceParams{DB: db, Node: node})

	return NewTask(TaskParams{Order: orderSvc, Catalog: catalogSvc}), orderSvc, db
}

func seedEvent(t *testing.T, db *gorm.DB) *catalog.Event {
	t.Helper()

	event := &catalog.Event{
		ID:             "evt-1",
		OwnerID:        "org-1",
		Title:          "gig",
		Slug:           "gig",
		Price:          100_000,
		AvailableSeats: 10,
		StartDate:      time.Now().Add(24 * time.Hour),
		EndDate:        time.Now().Add(48 * time.Hour),
		Status:         catalog.EventStatusActive,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func transitionTask(t *testing.T, taskType, orderID string) *asynq.Task {
	t.Helper()

	payload, err := json.Marshal(TransitionPayload{OrderID: orderID})
	require.NoError(t, err)
	return asynq.NewTask(taskType, payload)
}

func TestHandleOrderExpire(t *testing.T) {
	task, orderSvc, db := newTestTask(t)
	ctx := context.Background()
	event := seedEvent(t, db)

	ord, err := orderSvc.Reserve(ctx, order.ReserveRequest{
		UserID: "u1", EventID: event.ID, Quantity: 2,
	})
	require.NoError(t, err)

	require.NoError(t, task.HandleOrderExpire(ctx, transitionTask(t, TypeOrderExpire, ord.ID)))

	var got order.Order
	require.NoError(t, db.First(&got, "id = ?", ord.ID).Error)
	require.Equal(t, order.StatusExpired, got.Status())

	var gotEvent catalog.Event
	require.NoError(t, db.First(&gotEvent, "id = ?", event.ID).Error)
	require.Equal(t, 10, gotEvent.AvailableSeats)
}

func TestHandleOrderExpireAlreadyTransitioned(t *testing.T) {
	// The guard conflict is swallowed: nothing to retry.
	task, orderSvc, db := newTestTask(t)
	ctx := context.Background()
	event := seedEvent(t, db)

	ord, err := orderSvc.Reserve(ctx, order.ReserveRequest{
		UserID: "u1", EventID: event.ID, Quantity: 1,
	})
	require.NoError(t, err)
	_, err = orderSvc.RecordPaymentProof(ctx, ord.ID, "u1", "proof-1")
	require.NoError(t, err)

	require.NoError(t, task.HandleOrderExpire(ctx, transitionTask(t, TypeOrderExpire, ord.ID)))

	var got order.Order
	require.NoError(t, db.First(&got, "id = ?", ord.ID).Error)
	require.Equal(t, order.StatusPaid, got.Status())
}

func TestHandleOrderAutoCancel(t *testing.T) {
	task, orderSvc, db := newTestTask(t)
	ctx := context.Background()
	event := seedEvent(t, db)

	ord, err := orderSvc.Reserve(ctx, order.ReserveRequest{
		UserID: "u1", EventID: event.ID, Quantity: 1,
	})
	require.NoError(t, err)
	_, err = orderSvc.RecordPaymentProof(ctx, ord.ID, "u1", "proof-1")
	require.NoError(t, err)

	require.NoError(t, task.HandleOrderAutoCancel(ctx, transitionTask(t, TypeOrderAutoCancel, ord.ID)))

	var got order.Order
	require.NoError(t, db.First(&got, "id = ?", ord.ID).Error)
	require.Equal(t, order.StatusCancelled, got.Status())
}

func TestHandleCatalogRefresh(t *testing.T) {
	task, _, db := newTestTask(t)

	require.NoError(t, db.Create(&catalog.Event{
		ID: "evt-ended", OwnerID: "org-1", Title: "past", Slug: "past",
		StartDate: time.Now().Add(-48 * time.Hour),
		EndDate:   time.Now().Add(-24 * time.Hour),
		Status:    catalog.EventStatusActive,
	}).Error)

	require.NoError(t, task.HandleCatalogRefresh(context.Background(), asynq.NewTask(TypeCatalogRefresh, nil)))

	var got catalog.Event
	require.NoError(t, db.First(&got, "id = ?", "evt-ended").Error)
	require.Equal(t, catalog.EventStatusInactive, got.Status)
}
