package order

import (
	"context"
	"time"

	"eventix/pkg/db/option"
	"eventix/pkg/errutil"
	"eventix/pkg/repository"
	"eventix/pkg/task"
	"eventix/services/catalog"
	"eventix/services/voucher"
	"eventix/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer task.Enqueuer

	orders   repository.Repository[Order]
	allocs   repository.Repository[InstrumentAllocation]
	events   repository.Repository[catalog.Event]
	points   repository.Repository[wallet.Point]
	coupons  repository.Repository[wallet.Coupon]
	vouchers repository.Repository[voucher.Voucher]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,

		orders:   repository.ProvideStore[Order](p.DB),
		allocs:   repository.ProvideStore[InstrumentAllocation](p.DB),
		events:   repository.ProvideStore[catalog.Event](p.DB),
		points:   repository.ProvideStore[wallet.Point](p.DB),
		coupons:  repository.ProvideStore[wallet.Coupon](p.DB),
		vouchers: repository.ProvideStore[voucher.Voucher](p.DB),

		now: time.Now,
	}
}

type ReserveRequest struct {
	UserID        string `json:"-"`
	EventID       string `json:"event_id"`
	Quantity      int    `json:"quantity"`
	PointsToUse   int64  `json:"points_to_use"`
	CouponNominal int64  `json:"coupon_nominal"`
	VoucherID     string `json:"voucher_id"`
}

// Reserve creates a PENDING order: it checks seat and instrument availability,
// then decrements seats, debits points soonest-expiry-first, debits coupons by
// id, consumes one voucher quota unit, and records one allocation row per
// debited instrument. Everything runs in a single transaction under row locks
// so concurrent reservations against the same event or instrument serialize.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*Order, error) {
	if req.UserID == "" || req.EventID == "" {
		return nil, errutil.ValidationFailed("user_id and event_id are required", nil)
	}
	if req.Quantity <= 0 {
		return nil, errutil.ValidationFailed("quantity must be > 0", nil)
	}
	if req.PointsToUse < 0 || req.CouponNominal < 0 {
		return nil, errutil.ValidationFailed("points_to_use and coupon_nominal must be >= 0", nil)
	}

	var created *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		event, err := s.events.WithTrx(tx).FindOne(ctx, &catalog.Event{ID: req.EventID})
		if err != nil {
			return errutil.Internal("failed to query event", err)
		}
		if event == nil {
			return errutil.NotFound("event not found", nil)
		}
		if event.EndDate.Before(now) {
			return errutil.Conflict("event has ended", nil)
		}
		if event.AvailableSeats < req.Quantity {
			return errutil.Conflict("insufficient seats", nil)
		}

		var (
			voucherNominal  int64
			attachedVoucher *voucher.Voucher
		)
		if req.VoucherID != "" {
			v, err := s.vouchers.WithTrx(tx).FindOne(ctx, &voucher.Voucher{ID: req.VoucherID})
			if err != nil {
				return errutil.Internal("failed to query voucher", err)
			}
			if v == nil {
				return errutil.NotFound("voucher not found", nil)
			}
			if v.UserID != req.UserID {
				return errutil.Forbidden("voucher belongs to another user", nil)
			}
			if v.EventID != req.EventID {
				return errutil.Conflict("voucher is not valid for this event", nil)
			}
			if v.IsUsed || v.Quota <= 0 {
				return errutil.Conflict("voucher quota exhausted", nil)
			}
			voucherNominal = v.Nominal
			attachedVoucher = v
		}

		baseAmount := event.Price * int64(req.Quantity)
		discounts := ResolveDiscounts(baseAmount, req.PointsToUse, req.CouponNominal, voucherNominal)

		orderID := s.node.Generate().String()
		allocations := make([]*InstrumentAllocation, 0, 4)

		if req.PointsToUse > 0 {
			allocs, err := s.debitPoints(ctx, tx, req.UserID, orderID, req.PointsToUse, discounts.Points, now)
			if err != nil {
				return err
			}
			allocations = append(allocations, allocs...)
		}

		if req.CouponNominal > 0 {
			allocs, err := s.debitCoupons(ctx, tx, req.UserID, orderID, req.CouponNominal, discounts.Coupon, now)
			if err != nil {
				return err
			}
			allocations = append(allocations, allocs...)
		}

		if attachedVoucher != nil {
			if err := s.vouchers.WithTrx(tx).Update(ctx, attachedVoucher.ID, map[string]any{
				"quota":      gorm.Expr("quota - 1"),
				"is_used":    true,
				"updated_at": now,
			}); err != nil {
				return errutil.Internal("failed to consume voucher", err)
			}
			allocations = append(allocations, &InstrumentAllocation{
				ID:             s.node.Generate().String(),
				OrderID:        orderID,
				InstrumentType: InstrumentVoucher,
				InstrumentID:   attachedVoucher.ID,
				AmountDebited:  discounts.Voucher,
			})
		}

		if err := s.events.WithTrx(tx).Update(ctx, event.ID, map[string]any{
			"available_seats": gorm.Expr("available_seats - ?", req.Quantity),
			"updated_at":      now,
		}); err != nil {
			return errutil.Internal("failed to reserve seats", err)
		}

		if len(allocations) > 0 {
			if err := s.allocs.WithTrx(tx).BatchCreate(ctx, allocations); err != nil {
				return errutil.Internal("failed to record allocations", err)
			}
		}

		created = &Order{
			ID:              orderID,
			UserID:          req.UserID,
			EventID:         req.EventID,
			Quantity:        req.Quantity,
			BaseAmount:      baseAmount,
			DiscountPoint:   discounts.Points,
			DiscountCoupon:  discounts.Coupon,
			DiscountVoucher: discounts.Voucher,
			FinalAmount:     discounts.Final,
			StatusID:        int(StatusPending),
		}
		if err := s.orders.WithTrx(tx).Create(ctx, created); err != nil {
			return errutil.Internal("failed to create order", err)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// debitPoints greedily consumes point rows ordered by soonest expiry. The
// availability precondition is checked against the requested amount; the
// amount actually debited is the capped discount.
func (s *Service) debitPoints(ctx context.Context, tx *gorm.DB, userID, orderID string, requested, debit int64, now time.Time) ([]*InstrumentAllocation, error) {
	rows, err := s.points.WithTrx(tx).Find(ctx, &wallet.Point{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "remaining", Operator: option.GT, Value: 0}),
		option.ApplyOperator(option.Condition{Field: "expired_at", Operator: option.GT, Value: now}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "expired_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"expired_at": true},
		}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to query points", err)
	}

	var available int64
	for _, row := range rows {
		available += row.Remaining
	}
	if available < requested {
		return nil, errutil.Conflict("insufficient points", nil)
	}

	left := debit
	allocations := make([]*InstrumentAllocation, 0, len(rows))
	for _, row := range rows {
		if left == 0 {
			break
		}

		take := min64(row.Remaining, left)
		if err := s.points.WithTrx(tx).Update(ctx, row.ID, map[string]any{
			"remaining":  gorm.Expr("remaining - ?", take),
			"updated_at": now,
		}); err != nil {
			return nil, errutil.Internal("failed to debit points", err)
		}

		allocations = append(allocations, &InstrumentAllocation{
			ID:             s.node.Generate().String(),
			OrderID:        orderID,
			InstrumentType: InstrumentPoint,
			InstrumentID:   row.ID,
			AmountDebited:  take,
		})
		left -= take
	}

	return allocations, nil
}

// debitCoupons consumes coupon rows in id order (deterministic), flipping
// is_used once a coupon's nominal is fully spent.
func (s *Service) debitCoupons(ctx context.Context, tx *gorm.DB, userID, orderID string, requested, debit int64, now time.Time) ([]*InstrumentAllocation, error) {
	rows, err := s.coupons.WithTrx(tx).Find(ctx, &wallet.Coupon{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "nominal", Operator: option.GT, Value: 0}),
		option.ApplyOperator(option.Condition{Field: "expired_at", Operator: option.GT, Value: now}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to query coupons", err)
	}

	var available int64
	for _, row := range rows {
		if !row.IsUsed {
			available += row.Nominal
		}
	}
	if available < requested {
		return nil, errutil.Conflict("insufficient coupon value", nil)
	}

	left := debit
	allocations := make([]*InstrumentAllocation, 0, len(rows))
	for _, row := range rows {
		if left == 0 {
			break
		}
		if row.IsUsed {
			continue
		}

		take := min64(row.Nominal, left)
		updates := map[string]any{
			"nominal":    gorm.Expr("nominal - ?", take),
			"updated_at": now,
		}
		if take == row.Nominal {
			updates["is_used"] = true
		}
		if err := s.coupons.WithTrx(tx).Update(ctx, row.ID, updates); err != nil {
			return nil, errutil.Internal("failed to debit coupon", err)
		}

		allocations = append(allocations, &InstrumentAllocation{
			ID:             s.node.Generate().String(),
			OrderID:        orderID,
			InstrumentType: InstrumentCoupon,
			InstrumentID:   row.ID,
			AmountDebited:  take,
		})
		left -= take
	}

	return allocations, nil
}

func (s *Service) Get(ctx context.Context, orderID, actorID string) (*Order, error) {
	ord, err := s.orders.FindOne(ctx, &Order{ID: orderID})
	if err != nil {
		return nil, errutil.Internal("failed to query order", err)
	}
	if ord == nil {
		return nil, errutil.NotFound("order not found", nil)
	}

	if ord.UserID != actorID {
		event, err := s.events.FindOne(ctx, &catalog.Event{ID: ord.EventID})
		if err != nil {
			return nil, errutil.Internal("failed to query event", err)
		}
		if event == nil || event.OwnerID != actorID {
			return nil, errutil.Forbidden("order belongs to another user", nil)
		}
	}

	return ord, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	if userID == "" {
		return nil, errutil.ValidationFailed("user_id is required", nil)
	}
	orders, err := s.orders.Find(ctx, &Order{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list orders", err)
	}
	return orders, nil
}

// ListByEvent returns every order against one event. Only the event's owning
// organizer may call it.
func (s *Service) ListByEvent(ctx context.Context, eventID, actorID string) ([]*Order, error) {
	event, err := s.events.FindOne(ctx, &catalog.Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to query event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}
	if event.OwnerID != actorID {
		return nil, errutil.Forbidden("only the event owner may list its orders", nil)
	}

	orders, err := s.orders.Find(ctx, &Order{EventID: eventID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list orders", err)
	}
	return orders, nil
}
