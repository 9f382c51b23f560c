package catalog

import (
	"context"
	"fmt"
	"time"

	"eventix/pkg/db/option"
	"eventix/pkg/errutil"
	"eventix/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	event repository.Repository[Event]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		event: repository.ProvideStore[Event](p.DB),
		now:   time.Now,
	}
}

type CreateEventRequest struct {
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Price          int64     `json:"price"`
	AvailableSeats int       `json:"available_seats"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

func (s *Service) Create(ctx context.Context, req CreateEventRequest) (*Event, error) {
	if req.OwnerID == "" || req.Title == "" {
		return nil, errutil.ValidationFailed("owner_id and title are required", nil)
	}
	if req.Price < 0 || req.AvailableSeats < 0 {
		return nil, errutil.ValidationFailed("price and available_seats must be >= 0", nil)
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, errutil.ValidationFailed("end_date must be after start_date", nil)
	}

	id := s.node.Generate().String()
	event := &Event{
		ID:             id,
		OwnerID:        req.OwnerID,
		Title:          req.Title,
		Slug:           fmt.Sprintf("%s-%s", slug.Make(req.Title), id),
		Description:    req.Description,
		Price:          req.Price,
		AvailableSeats: req.AvailableSeats,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Status:         lifecycleStatus(s.now(), req.EndDate),
	}

	if err := s.event.Create(ctx, event); err != nil {
		zap.L().Error("failed to create event", zap.Error(err))
		return nil, errutil.Internal("failed to create event", err)
	}

	return event, nil
}

func (s *Service) Get(ctx context.Context, eventID string) (*Event, error) {
	event, err := s.event.FindOne(ctx, &Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to query event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}
	return event, nil
}

func (s *Service) GetBySlug(ctx context.Context, eventSlug string) (*Event, error) {
	event, err := s.event.FindOne(ctx, &Event{Slug: eventSlug})
	if err != nil {
		return nil, errutil.Internal("failed to query event", err)
	}
	if event == nil {
		return nil, errutil.NotFound("event not found", nil)
	}
	return event, nil
}

type ListEventsRequest struct {
	OwnerID string
	Status  EventStatus
	Limit   int
}

func (s *Service) List(ctx context.Context, req ListEventsRequest) ([]*Event, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	events, err := s.event.Find(ctx, &Event{OwnerID: req.OwnerID, Status: req.Status},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "start_date",
			OrderBy: "asc",
			Allow:   map[string]bool{"start_date": true},
		}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list events", err)
	}
	return events, nil
}

// RefreshLifecycle recomputes the derived ACTIVE/INACTIVE status of every
// event from the current time versus its end date. It returns how many rows
// changed.
func (s *Service) RefreshLifecycle(ctx context.Context) (int64, error) {
	now := s.now()

	ended := s.db.WithContext(ctx).Model(&Event{}).
		Where("end_date < ? AND status <> ?", now, EventStatusInactive).
		Update("status", EventStatusInactive)
	if ended.Error != nil {
		return 0, errutil.Internal("failed to deactivate ended events", ended.Error)
	}

	running := s.db.WithContext(ctx).Model(&Event{}).
		Where("end_date >= ? AND status <> ?", now, EventStatusActive).
		Update("status", EventStatusActive)
	if running.Error != nil {
		return ended.RowsAffected, errutil.Internal("failed to activate events", running.Error)
	}

	return ended.RowsAffected + running.RowsAffected, nil
}

func lifecycleStatus(now, endDate time.Time) EventStatus {
	if endDate.Before(now) {
		return EventStatusInactive
	}
	return EventStatusActive
}
