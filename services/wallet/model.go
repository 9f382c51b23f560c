package wallet

import "time"

// GrantSource identifies why an instrument was granted.
type GrantSource string

const (
	SourceRegistration GrantSource = "registration"
	SourceReferral     GrantSource = "referral"
	SourceAdmin        GrantSource = "admin"
)

func (s GrantSource) Valid() bool {
	switch s {
	case SourceRegistration, SourceReferral, SourceAdmin:
		return true
	default:
		return false
	}
}

// Point is a loyalty point grant. Remaining is materialized at grant time and
// is the only spendable balance; Amount stays the original grant for audit.
type Point struct {
	ID        string      `gorm:"column:id;primaryKey"`
	UserID    string      `gorm:"column:user_id;index;not null"`
	Amount    int64       `gorm:"column:amount;not null"`
	Remaining int64       `gorm:"column:remaining;not null"`
	Source    GrantSource `gorm:"column:source;not null"`
	ExpiredAt time.Time   `gorm:"column:expired_at;not null;index"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Point) TableName() string {
	return "points"
}

// Coupon carries a nominal value that is mutated in place as it is spent.
// IsUsed flips to true when the nominal reaches zero.
type Coupon struct {
	ID        string      `gorm:"column:id;primaryKey"`
	UserID    string      `gorm:"column:user_id;index;not null"`
	Nominal   int64       `gorm:"column:nominal;not null"`
	IsUsed    bool        `gorm:"column:is_used;not null;default:false"`
	Source    GrantSource `gorm:"column:source;not null"`
	ExpiredAt time.Time   `gorm:"column:expired_at;not null;index"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Coupon) TableName() string {
	return "coupons"
}
