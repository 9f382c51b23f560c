package voucher

import "time"

// Voucher is a single-event discount instrument. It is all-or-nothing per
// order: one voucher attaches to at most one open order, consuming exactly
// one quota unit.
type Voucher struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;index;not null"`
	EventID   string    `gorm:"column:event_id;index;not null"`
	Nominal   int64     `gorm:"column:nominal;not null"`
	Quota     int       `gorm:"column:quota;not null;default:0"`
	IsUsed    bool      `gorm:"column:is_used;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Voucher) TableName() string {
	return "vouchers"
}
