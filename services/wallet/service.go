package wallet

import (
	"context"
	"time"

	"eventix/pkg/db/option"
	"eventix/pkg/errutil"
	"eventix/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Grants expire three months after issuance.
const grantValidity = 3

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	point  repository.Repository[Point]
	coupon repository.Repository[Coupon]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		point:  repository.ProvideStore[Point](p.DB),
		coupon: repository.ProvideStore[Coupon](p.DB),
		now:    time.Now,
	}
}

type GrantRequest struct {
	UserID string      `json:"user_id"`
	Amount int64       `json:"amount"`
	Source GrantSource `json:"source"`
}

func (r GrantRequest) validate() error {
	if r.UserID == "" {
		return errutil.ValidationFailed("user_id is required", nil)
	}
	if r.Amount <= 0 {
		return errutil.ValidationFailed("amount must be > 0", nil)
	}
	if !r.Source.Valid() {
		return errutil.ValidationFailed("unknown grant source", nil)
	}
	return nil
}

func (s *Service) GrantPoints(ctx context.Context, req GrantRequest) (*Point, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	point := &Point{
		ID:        s.node.Generate().String(),
		UserID:    req.UserID,
		Amount:    req.Amount,
		Remaining: req.Amount,
		Source:    req.Source,
		ExpiredAt: now.AddDate(0, grantValidity, 0),
	}

	if err := s.point.Create(ctx, point); err != nil {
		zap.L().Error("failed to grant points", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, errutil.Internal("failed to grant points", err)
	}

	return point, nil
}

func (s *Service) GrantCoupon(ctx context.Context, req GrantRequest) (*Coupon, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	coupon := &Coupon{
		ID:        s.node.Generate().String(),
		UserID:    req.UserID,
		Nominal:   req.Amount,
		Source:    req.Source,
		ExpiredAt: now.AddDate(0, grantValidity, 0),
	}

	if err := s.coupon.Create(ctx, coupon); err != nil {
		zap.L().Error("failed to grant coupon", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, errutil.Internal("failed to grant coupon", err)
	}

	return coupon, nil
}

// Balance is the spendable value a user currently holds per instrument kind.
type Balance struct {
	Points int64 `json:"points"`
	Coupon int64 `json:"coupon"`
}

func (s *Service) AvailableBalance(ctx context.Context, userID string) (*Balance, error) {
	if userID == "" {
		return nil, errutil.ValidationFailed("user_id is required", nil)
	}

	now := s.now()

	points, err := s.point.Find(ctx, &Point{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "remaining", Operator: option.GT, Value: 0}),
		option.ApplyOperator(option.Condition{Field: "expired_at", Operator: option.GT, Value: now}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to query points", err)
	}

	coupons, err := s.coupon.Find(ctx, &Coupon{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "nominal", Operator: option.GT, Value: 0}),
		option.ApplyOperator(option.Condition{Field: "expired_at", Operator: option.GT, Value: now}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to query coupons", err)
	}

	balance := &Balance{}
	for _, p := range points {
		balance.Points += p.Remaining
	}
	for _, c := range coupons {
		if !c.IsUsed {
			balance.Coupon += c.Nominal
		}
	}
	return balance, nil
}
