package order

import (
	"context"
	"fmt"
	"time"

	"eventix/pkg/db/option"
	"eventix/pkg/errutil"
	"eventix/services/catalog"

	"gorm.io/gorm"
)

// RecordPaymentProof moves a PENDING order to PAID. The proof reference is an
// opaque string; its upload mechanics live outside this service.
func (s *Service) RecordPaymentProof(ctx context.Context, orderID, userID, proofRef string) (*Order, error) {
	if proofRef == "" {
		return nil, errutil.ValidationFailed("proof_ref is required", nil)
	}

	var updated *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		ord, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if ord.UserID != userID {
			return errutil.Forbidden("order belongs to another user", nil)
		}
		if ord.Status() != StatusPending {
			return errutil.Conflict(fmt.Sprintf("cannot record proof on a %s order", ord.Status()), nil)
		}

		if err := s.orders.WithTrx(tx).Update(ctx, ord.ID, map[string]any{
			"status_id":         int(StatusPaid),
			"payment_proof_ref": proofRef,
			"updated_at":        now,
		}); err != nil {
			return errutil.Internal("failed to update order", err)
		}

		ord.StatusID = int(StatusPaid)
		ord.PaymentProofRef = &proofRef
		updated = ord
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// Approve moves a PAID order to DONE. Discounts become permanently consumed;
// nothing is rolled back. Only the event's owning organizer may approve.
func (s *Service) Approve(ctx context.Context, orderID, actorID string) (*Order, error) {
	var updated *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		ord, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := s.requireEventOwner(ctx, tx, ord.EventID, actorID); err != nil {
			return err
		}
		if ord.Status() != StatusPaid {
			return errutil.Conflict(fmt.Sprintf("cannot approve a %s order", ord.Status()), nil)
		}
		if ord.PaymentProofRef == nil {
			return errutil.Conflict("order has no payment proof", nil)
		}

		if err := s.orders.WithTrx(tx).Update(ctx, ord.ID, map[string]any{
			"status_id":  int(StatusDone),
			"updated_at": now,
		}); err != nil {
			return errutil.Internal("failed to update order", err)
		}

		ord.StatusID = int(StatusDone)
		updated = ord
		return nil
	}); err != nil {
		return nil, err
	}

	s.notify(TypeNotifyApproved, updated)
	return updated, nil
}

// Reject moves a PAID order to REJECTED with a full rollback of seats and
// instruments. Only the event's owning organizer may reject.
func (s *Service) Reject(ctx context.Context, orderID, actorID string) (*Order, error) {
	var updated *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		ord, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := s.requireEventOwner(ctx, tx, ord.EventID, actorID); err != nil {
			return err
		}
		if ord.Status() != StatusPaid {
			return errutil.Conflict(fmt.Sprintf("cannot reject a %s order", ord.Status()), nil)
		}

		if err := s.rollback(ctx, tx, ord, StatusRejected, now); err != nil {
			return err
		}

		ord.StatusID = int(StatusRejected)
		updated = ord
		return nil
	}); err != nil {
		return nil, err
	}

	s.notify(TypeNotifyRejected, updated)
	return updated, nil
}

// Cancel is the customer/organizer-initiated rollback path. A PENDING order
// may be cancelled by its owning customer; a DONE order (refund) by the
// customer or the event's organizer.
func (s *Service) Cancel(ctx context.Context, orderID, actorID string) (*Order, error) {
	var updated *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		ord, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		switch ord.Status() {
		case StatusPending:
			if ord.UserID != actorID {
				return errutil.Forbidden("order belongs to another user", nil)
			}
		case StatusDone:
			if ord.UserID != actorID {
				if err := s.requireEventOwner(ctx, tx, ord.EventID, actorID); err != nil {
					return err
				}
			}
		default:
			return errutil.Conflict(fmt.Sprintf("cannot cancel a %s order", ord.Status()), nil)
		}

		if err := s.rollback(ctx, tx, ord, StatusCancelled, now); err != nil {
			return err
		}

		ord.StatusID = int(StatusCancelled)
		updated = ord
		return nil
	}); err != nil {
		return nil, err
	}

	s.notify(TypeNotifyCancelled, updated)
	return updated, nil
}

// Expire is the scheduler-driven PENDING to EXPIRED rollback. The status is
// re-checked under lock so a proof upload racing the sweep wins cleanly.
func (s *Service) Expire(ctx context.Context, orderID string) (*Order, error) {
	var updated *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		ord, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if ord.Status() != StatusPending {
			return errutil.Conflict(fmt.Sprintf("cannot expire a %s order", ord.Status()), nil)
		}

		if err := s.rollback(ctx, tx, ord, StatusExpired, now); err != nil {
			return err
		}

		ord.StatusID = int(StatusExpired)
		updated = ord
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// AutoCancel is the scheduler-driven PAID to CANCELLED rollback for orders
// whose organizer never confirmed within the window.
func (s *Service) AutoCancel(ctx context.Context, orderID string) (*Order, error) {
	var updated *Order
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		now := s.now()

		ord, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if ord.Status() != StatusPaid {
			return errutil.Conflict(fmt.Sprintf("cannot auto-cancel a %s order", ord.Status()), nil)
		}

		if err := s.rollback(ctx, tx, ord, StatusCancelled, now); err != nil {
			return err
		}

		ord.StatusID = int(StatusCancelled)
		updated = ord
		return nil
	}); err != nil {
		return nil, err
	}

	s.notify(TypeNotifyCancelled, updated)
	return updated, nil
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, orderID string) (*Order, error) {
	ord, err := s.orders.WithTrx(tx).FindOne(ctx, &Order{ID: orderID})
	if err != nil {
		return nil, errutil.Internal("failed to query order", err)
	}
	if ord == nil {
		return nil, errutil.NotFound("order not found", nil)
	}
	return ord, nil
}

func (s *Service) requireEventOwner(ctx context.Context, tx *gorm.DB, eventID, actorID string) error {
	event, err := s.events.WithTrx(tx).FindOne(ctx, &catalog.Event{ID: eventID})
	if err != nil {
		return errutil.Internal("failed to query event", err)
	}
	if event == nil {
		return errutil.NotFound("event not found", nil)
	}
	if event.OwnerID != actorID {
		return errutil.Forbidden("only the event owner may perform this action", nil)
	}
	return nil
}

// rollback restores seats and every unreleased instrument allocation of the
// order, then moves it to the target status. Callers re-check the source
// status inside the same transaction, which makes a second rollback a guarded
// conflict instead of a double restore.
func (s *Service) rollback(ctx context.Context, tx *gorm.DB, ord *Order, target Status, now time.Time) error {
	if err := s.events.WithTrx(tx).Update(ctx, ord.EventID, map[string]any{
		"available_seats": gorm.Expr("available_seats + ?", ord.Quantity),
		"updated_at":      now,
	}); err != nil {
		return errutil.Internal("failed to restore seats", err)
	}

	allocations, err := s.allocs.WithTrx(tx).Find(ctx, &InstrumentAllocation{OrderID: ord.ID})
	if err != nil {
		return errutil.Internal("failed to query allocations", err)
	}

	for _, a := range allocations {
		if a.ReleasedAt != nil {
			continue
		}

		switch a.InstrumentType {
		case InstrumentPoint:
			err = s.points.WithTrx(tx).Update(ctx, a.InstrumentID, map[string]any{
				"remaining":  gorm.Expr("remaining + ?", a.AmountDebited),
				"updated_at": now,
			})
		case InstrumentCoupon:
			err = s.coupons.WithTrx(tx).Update(ctx, a.InstrumentID, map[string]any{
				"nominal":    gorm.Expr("nominal + ?", a.AmountDebited),
				"is_used":    false,
				"updated_at": now,
			})
		case InstrumentVoucher:
			err = s.vouchers.WithTrx(tx).Update(ctx, a.InstrumentID, map[string]any{
				"quota":      gorm.Expr("quota + 1"),
				"is_used":    false,
				"updated_at": now,
			})
		}
		if err != nil {
			return errutil.Internal("failed to restore instrument", err)
		}

		if err := s.allocs.WithTrx(tx).Update(ctx, a.ID, map[string]any{
			"released_at": now,
		}); err != nil {
			return errutil.Internal("failed to release allocation", err)
		}
	}

	if err := s.orders.WithTrx(tx).Update(ctx, ord.ID, map[string]any{
		"status_id":  int(target),
		"updated_at": now,
	}); err != nil {
		return errutil.Internal("failed to update order", err)
	}

	return nil
}
