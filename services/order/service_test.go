package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventix/pkg/errutil"
	"eventix/services/catalog"
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

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&catalog.Event{},
		&wallet.Point{},
		&wallet.Coupon{},
		&voucher.Voucher{},
		&PaymentStatus{},
		&Order{},
		&InstrumentAllocation{},
	)
	require.NoError(t, SeedPaymentStatuses(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func seedEvent(t *testing.T, db *gorm.DB, owner string, seats int, price int64) *catalog.Event {
	t.Helper()

	event := &catalog.Event{
		ID:             "evt-" + owner + "-" + t.Name(),
		OwnerID:        owner,
		Title:          "test event",
		Slug:           "test-event-" + owner + "-" + t.Name(),
		Price:          price,
		AvailableSeats: seats,
		StartDate:      time.Now().Add(24 * time.Hour),
		EndDate:        time.Now().Add(48 * time.Hour),
		Status:         catalog.EventStatusActive,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func seedPoint(t *testing.T, db *gorm.DB, id, userID string, amount int64, expiredAt time.Time) *wallet.Point {
	t.Helper()

	point := &wallet.Point{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Remaining: amount,
		Source:    wallet.SourceRegistration,
		ExpiredAt: expiredAt,
	}
	require.NoError(t, db.Create(point).Error)
	return point
}

func seedCoupon(t *testing.T, db *gorm.DB, id, userID string, nominal int64) *wallet.Coupon {
	t.Helper()

	coupon := &wallet.Coupon{
		ID:        id,
		UserID:    userID,
		Nominal:   nominal,
		Source:    wallet.SourceReferral,
		ExpiredAt: time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(coupon).Error)
	return coupon
}

func seedVoucher(t *testing.T, db *gorm.DB, id, userID, eventID string, nominal int64, quota int) *voucher.Voucher {
	t.Helper()

	v := &voucher.Voucher{
		ID:      id,
		UserID:  userID,
		EventID: eventID,
		Nominal: nominal,
		Quota:   quota,
	}
	require.NoError(t, db.Create(v).Error)
	return v
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Status())
}

func TestReserveValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, ReserveRequest{EventID: "evt", Quantity: 1})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: "evt", Quantity: 0})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: "evt", Quantity: 1, PointsToUse: -1})
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestReserveEventNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reserve(context.Background(), ReserveRequest{UserID: "u1", EventID: "missing", Quantity: 1})
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestReservePlain(t *testing.T) {
	// Scenario: 10 seats at 100k, reserve 2 with no instruments.
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)

	ord, err := svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 2})
	require.NoError(t, err)

	require.Equal(t, StatusPending, ord.Status())
	require.Equal(t, int64(200_000), ord.BaseAmount)
	require.Equal(t, int64(200_000), ord.FinalAmount)

	var got catalog.Event
	require.NoError(t, db.First(&got, "id = ?", event.ID).Error)
	require.Equal(t, 8, got.AvailableSeats)
}

func TestReservePartialPointDebit(t *testing.T) {
	// Scenario: one 50k point grant, use 30k against a 100k order.
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	point := seedPoint(t, db, "pt-1", "u1", 50_000, time.Now().Add(time.Hour))

	ord, err := svc.Reserve(ctx, ReserveRequest{
		UserID:      "u1",
		EventID:     event.ID,
		Quantity:    1,
		PointsToUse: 30_000,
	})
	require.NoError(t, err)

	require.Equal(t, int64(30_000), ord.DiscountPoint)
	require.Equal(t, int64(70_000), ord.FinalAmount)

	var got wallet.Point
	require.NoError(t, db.First(&got, "id = ?", point.ID).Error)
	require.Equal(t, int64(20_000), got.Remaining)

	var alloc InstrumentAllocation
	require.NoError(t, db.First(&alloc, "order_id = ? AND instrument_type = ?", ord.ID, InstrumentPoint).Error)
	require.Equal(t, point.ID, alloc.InstrumentID)
	require.Equal(t, int64(30_000), alloc.AmountDebited)
	require.Nil(t, alloc.ReleasedAt)
}

func TestReservePointsSoonestExpiryFirst(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)

	late := seedPoint(t, db, "pt-late", "u1", 40_000, time.Now().Add(72*time.Hour))
	soon := seedPoint(t, db, "pt-soon", "u1", 25_000, time.Now().Add(time.Hour))

	ord, err := svc.Reserve(ctx, ReserveRequest{
		UserID:      "u1",
		EventID:     event.ID,
		Quantity:    1,
		PointsToUse: 40_000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(40_000), ord.DiscountPoint)

	var gotSoon, gotLate wallet.Point
	require.NoError(t, db.First(&gotSoon, "id = ?", soon.ID).Error)
	require.NoError(t, db.First(&gotLate, "id = ?", late.ID).Error)

	require.Equal(t, int64(0), gotSoon.Remaining)
	require.Equal(t, int64(25_000), gotLate.Remaining)
}

func TestReserveSkipsExpiredPoints(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	seedPoint(t, db, "pt-expired", "u1", 50_000, time.Now().Add(-time.Hour))

	_, err := svc.Reserve(ctx, ReserveRequest{
		UserID:      "u1",
		EventID:     event.ID,
		Quantity:    1,
		PointsToUse: 10_000,
	})
	requireStatus(t, err, errutil.StatusConflict)
}

func TestReserveCouponFullySpentMarksUsed(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	small := seedCoupon(t, db, "cp-1", "u1", 10_000)
	big := seedCoupon(t, db, "cp-2", "u1", 50_000)

	ord, err := svc.Reserve(ctx, ReserveRequest{
		UserID:        "u1",
		EventID:       event.ID,
		Quantity:      1,
		CouponNominal: 30_000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(30_000), ord.DiscountCoupon)

	// Coupons are debited in id order: cp-1 fully, cp-2 partially.
	var gotSmall, gotBig wallet.Coupon
	require.NoError(t, db.First(&gotSmall, "id = ?", small.ID).Error)
	require.NoError(t, db.First(&gotBig, "id = ?", big.ID).Error)

	require.Equal(t, int64(0), gotSmall.Nominal)
	require.True(t, gotSmall.IsUsed)
	require.Equal(t, int64(30_000), gotBig.Nominal)
	require.False(t, gotBig.IsUsed)
}

func TestReserveVoucherConsumesQuota(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	v := seedVoucher(t, db, "vc-1", "u1", event.ID, 25_000, 1)

	ord, err := svc.Reserve(ctx, ReserveRequest{
		UserID:    "u1",
		EventID:   event.ID,
		Quantity:  1,
		VoucherID: v.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(25_000), ord.DiscountVoucher)
	require.Equal(t, int64(75_000), ord.FinalAmount)

	var got voucher.Voucher
	require.NoError(t, db.First(&got, "id = ?", v.ID).Error)
	require.Equal(t, 0, got.Quota)
	require.True(t, got.IsUsed)
}

func TestReserveVoucherGuards(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	other := seedEvent(t, db, "org-2", 5, 50_000)

	foreign := seedVoucher(t, db, "vc-foreign", "u2", event.ID, 10_000, 1)
	wrongEvent := seedVoucher(t, db, "vc-wrong", "u1", other.ID, 10_000, 1)
	spent := seedVoucher(t, db, "vc-spent", "u1", event.ID, 10_000, 0)

	_, err := svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 1, VoucherID: "missing"})
	requireStatus(t, err, errutil.StatusNotFound)

	_, err = svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 1, VoucherID: foreign.ID})
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 1, VoucherID: wrongEvent.ID})
	requireStatus(t, err, errutil.StatusConflict)

	_, err = svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 1, VoucherID: spent.ID})
	requireStatus(t, err, errutil.StatusConflict)
}

func TestReserveInsufficientSeats(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 1, 100_000)

	_, err := svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 2})
	requireStatus(t, err, errutil.StatusConflict)

	// Nothing was mutated.
	var got catalog.Event
	require.NoError(t, db.First(&got, "id = ?", event.ID).Error)
	require.Equal(t, 1, got.AvailableSeats)
}

func TestReserveLastSeatContention(t *testing.T) {
	// Two reservations race for the last seat; the second must observe the
	// decrement and fail with a conflict, never overselling.
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 1, 100_000)

	_, err := svc.Reserve(ctx, ReserveRequest{UserID: "u1", EventID: event.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, ReserveRequest{UserID: "u2", EventID: event.ID, Quantity: 1})
	requireStatus(t, err, errutil.StatusConflict)

	var got catalog.Event
	require.NoError(t, db.First(&got, "id = ?", event.ID).Error)
	require.Equal(t, 0, got.AvailableSeats)
}

func TestReserveInsufficientPointsLeavesNoPartialWrites(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	seedPoint(t, db, "pt-1", "u1", 10_000, time.Now().Add(time.Hour))

	_, err := svc.Reserve(ctx, ReserveRequest{
		UserID:      "u1",
		EventID:     event.ID,
		Quantity:    1,
		PointsToUse: 20_000,
	})
	requireStatus(t, err, errutil.StatusConflict)

	var gotEvent catalog.Event
	require.NoError(t, db.First(&gotEvent, "id = ?", event.ID).Error)
	require.Equal(t, 10, gotEvent.AvailableSeats)

	var gotPoint wallet.Point
	require.NoError(t, db.First(&gotPoint, "id = ?", "pt-1").Error)
	require.Equal(t, int64(10_000), gotPoint.Remaining)

	var count int64
	require.NoError(t, db.Model(&Order{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestReserveConservation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)
	seedPoint(t, db, "pt-1", "u1", 40_000, time.Now().Add(time.Hour))
	seedCoupon(t, db, "cp-1", "u1", 45_000)
	v := seedVoucher(t, db, "vc-1", "u1", event.ID, 30_000, 2)

	ord, err := svc.Reserve(ctx, ReserveRequest{
		UserID:        "u1",
		EventID:       event.ID,
		Quantity:      1,
		PointsToUse:   40_000,
		CouponNominal: 45_000,
		VoucherID:     v.ID,
	})
	require.NoError(t, err)

	require.Equal(t, ord.BaseAmount,
		ord.DiscountPoint+ord.DiscountCoupon+ord.DiscountVoucher+ord.FinalAmount)
	require.GreaterOrEqual(t, ord.FinalAmount, int64(0))
}

func TestListByEventOwnershipGuard(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	event := seedEvent(t, db, "org-1", 10, 100_000)

	_, err := svc.ListByEvent(ctx, event.ID, "org-2")
	requireStatus(t, err, errutil.StatusForbidden)

	orders, err := svc.ListByEvent(ctx, event.ID, "org-1")
	require.NoError(t, err)
	require.Empty(t, orders)
}
