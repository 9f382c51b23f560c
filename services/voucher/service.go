package voucher

import (
	"context"

	"eventix/pkg/errutil"
	"eventix/pkg/repository"
	"eventix/services/catalog"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	voucher repository.Repository[Voucher]
	event   repository.Repository[catalog.Event]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		voucher: repository.ProvideStore[Voucher](p.DB),
		event:   repository.ProvideStore[catalog.Event](p.DB),
	}
}

type CreateVoucherRequest struct {
	ActorID string `json:"-"`
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
	Nominal int64  `json:"nominal"`
	Quota   int    `json:"quota"`
}

// Create issues a voucher for a user, scoped to one event. Only the event's
// owning organizer may issue vouchers against it.
func (s *Service) Create(ctx context.Context, req CreateVoucherRequest) (*Voucher, error) {
	if req.UserID == "" || req.EventID == "" {
		return nil, errutil.ValidationFailed("user_id and event_id are required", nil)
	}
	if req.Nominal <= 0 || req.Quota <= 0 {
		return nil, errutil.ValidationFailed("nominal and quota must be > 0", nil)
	}

	event, err := s.event.FindOne(ctx, &catalog.Event{ID: req.EventID})
	if err != nil {
		return nil, errutil.Internal("failed to query event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}
	if event.OwnerID != req.ActorID {
		return nil, errutil.Forbidden("only the event owner may issue vouchers", nil)
	}

	voucher := &Voucher{
		ID:      s.node.Generate().String(),
		UserID:  req.UserID,
		EventID: req.EventID,
		Nominal: req.Nominal,
		Quota:   req.Quota,
	}

	if err := s.voucher.Create(ctx, voucher); err != nil {
		zap.L().Error("failed to create voucher", zap.String("event_id", req.EventID), zap.Error(err))
		return nil, errutil.Internal("failed to create voucher", err)
	}

	return voucher, nil
}

func (s *Service) Get(ctx context.Context, voucherID string) (*Voucher, error) {
	voucher, err := s.voucher.FindOne(ctx, &Voucher{ID: voucherID})
	if err != nil {
		return nil, errutil.Internal("failed to query voucher", err)
	}
	if voucher == nil {
		return nil, errutil.NotFound("voucher not found", nil)
	}
	return voucher, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Voucher, error) {
	if userID == "" {
		return nil, errutil.ValidationFailed("user_id is required", nil)
	}
	vouchers, err := s.voucher.Find(ctx, &Voucher{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to list vouchers", err)
	}
	return vouchers, nil
}
