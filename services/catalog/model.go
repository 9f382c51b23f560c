package catalog

import (
	"time"

	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventStatusActive   EventStatus = "ACTIVE"
	EventStatusInactive EventStatus = "INACTIVE"
)

func (s EventStatus) String() string {
	switch s {
	case EventStatusActive, EventStatusInactive:
		return string(s)
	default:
		return ""
	}
}

// Event is a sellable event. AvailableSeats is the shared seat inventory and
// is only ever mutated through the order reservation and rollback paths.
type Event struct {
	ID             string         `gorm:"column:id;primaryKey"`
	OwnerID        string         `gorm:"column:owner_id;index;not null"`
	Title          string         `gorm:"column:title;not null"`
	Slug           string         `gorm:"column:slug;uniqueIndex;not null"`
	Description    string         `gorm:"column:description"`
	Price          int64          `gorm:"column:price;not null;default:0"`
	AvailableSeats int            `gorm:"column:available_seats;not null;default:0"`
	StartDate      time.Time      `gorm:"column:start_date;not null"`
	EndDate        time.Time      `gorm:"column:end_date;not null;index"`
	Status         EventStatus    `gorm:"column:status;not null;default:'ACTIVE'"`
	Metadata       datatypes.JSON `gorm:"column:metadata"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string {
	return "events"
}
