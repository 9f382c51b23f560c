package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventix/pkg/errutil"
	"eventix/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Point{}, &Coupon{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Status())
}

func TestGrantValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GrantPoints(ctx, GrantRequest{Amount: 100, Source: SourceAdmin})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.GrantPoints(ctx, GrantRequest{UserID: "u1", Amount: 0, Source: SourceAdmin})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.GrantCoupon(ctx, GrantRequest{UserID: "u1", Amount: 100, Source: "promo"})
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestGrantPointsMaterializesRemaining(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	point, err := svc.GrantPoints(context.Background(), GrantRequest{
		UserID: "u1",
		Amount: 50_000,
		Source: SourceRegistration,
	})
	require.NoError(t, err)

	require.Equal(t, int64(50_000), point.Amount)
	require.Equal(t, int64(50_000), point.Remaining)
	require.Equal(t, base.AddDate(0, 3, 0), point.ExpiredAt)
}

func TestAvailableBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.db.Create(&Point{
		ID: "pt-1", UserID: "u1", Amount: 30_000, Remaining: 20_000,
		Source: SourceRegistration, ExpiredAt: now.Add(time.Hour),
	}).Error)
	require.NoError(t, svc.db.Create(&Point{
		ID: "pt-expired", UserID: "u1", Amount: 50_000, Remaining: 50_000,
		Source: SourceReferral, ExpiredAt: now.Add(-time.Hour),
	}).Error)
	require.NoError(t, svc.db.Create(&Coupon{
		ID: "cp-1", UserID: "u1", Nominal: 15_000,
		Source: SourceReferral, ExpiredAt: now.Add(time.Hour),
	}).Error)
	require.NoError(t, svc.db.Create(&Coupon{
		ID: "cp-other", UserID: "u2", Nominal: 99_000,
		Source: SourceAdmin, ExpiredAt: now.Add(time.Hour),
	}).Error)

	balance, err := svc.AvailableBalance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(20_000), balance.Points)
	require.Equal(t, int64(15_000), balance.Coupon)
}
