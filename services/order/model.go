package order

import (
	"time"

	"gorm.io/gorm"
)

// Status is the closed payment-status enumeration. The numeric values are
// fixed and seeded into payment_statuses; they must never be renumbered.
type Status int

const (
	StatusPending   Status = 1
	StatusPaid      Status = 2
	StatusDone      Status = 3
	StatusRejected  Status = 4
	StatusCancelled Status = 5
	StatusExpired   Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusPaid:
		return "PAID"
	case StatusDone:
		return "DONE"
	case StatusRejected:
		return "REJECTED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// PaymentStatus is the persisted statusId to name mapping.
type PaymentStatus struct {
	StatusID int    `gorm:"column:status_id;primaryKey"`
	Name     string `gorm:"column:name;uniqueIndex;not null"`
}

func (PaymentStatus) TableName() string {
	return "payment_statuses"
}

// SeedPaymentStatuses upserts the fixed status rows.
func SeedPaymentStatuses(db *gorm.DB) error {
	statuses := []Status{
		StatusPending, StatusPaid, StatusDone,
		StatusRejected, StatusCancelled, StatusExpired,
	}
	for _, s := range statuses {
		row := PaymentStatus{StatusID: int(s), Name: s.String()}
		if err := db.Where(&PaymentStatus{StatusID: row.StatusID}).
			FirstOrCreate(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// Order is a ticket purchase. FinalAmount always equals BaseAmount minus the
// three discount columns, floored at zero.
type Order struct {
	ID              string    `gorm:"column:id;primaryKey"`
	UserID          string    `gorm:"column:user_id;index;not null"`
	EventID         string    `gorm:"column:event_id;index;not null"`
	Quantity        int       `gorm:"column:quantity;not null"`
	BaseAmount      int64     `gorm:"column:base_amount;not null"`
	DiscountPoint   int64     `gorm:"column:discount_point;not null;default:0"`
	DiscountCoupon  int64     `gorm:"column:discount_coupon;not null;default:0"`
	DiscountVoucher int64     `gorm:"column:discount_voucher;not null;default:0"`
	FinalAmount     int64     `gorm:"column:final_amount;not null"`
	StatusID        int       `gorm:"column:status_id;index;not null"`
	PaymentProofRef *string   `gorm:"column:payment_proof_ref"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Status() Status {
	return Status(o.StatusID)
}

type InstrumentType string

const (
	InstrumentPoint   InstrumentType = "point"
	InstrumentCoupon  InstrumentType = "coupon"
	InstrumentVoucher InstrumentType = "voucher"
)

// InstrumentAllocation records the exact amount debited from one instrument
// row for one order. Rollback restores from these rows instead of re-deriving
// amounts from the instrument itself. ReleasedAt is stamped once the
// allocation has been rolled back.
type InstrumentAllocation struct {
	ID             string         `gorm:"column:id;primaryKey"`
	OrderID        string         `gorm:"column:order_id;index;not null"`
	InstrumentType InstrumentType `gorm:"column:instrument_type;not null"`
	InstrumentID   string         `gorm:"column:instrument_id;index;not null"`
	AmountDebited  int64          `gorm:"column:amount_debited;not null"`
	ReleasedAt     *time.Time     `gorm:"column:released_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (InstrumentAllocation) TableName() string {
	return "instrument_allocations"
}
