package order

// Discounts is the per-instrument settlement for one order. The fields always
// satisfy Points + Coupon + Voucher + Final == base.
type Discounts struct {
	Points  int64
	Coupon  int64
	Voucher int64
	Final   int64
}

// ResolveDiscounts applies the three discount instruments in strict
// precedence order (points, then coupon, then voucher), each capped by the
// residual left over from the previous one. Inputs must be non-negative;
// callers validate before invoking.
func ResolveDiscounts(baseAmount, pointsRequested, couponRequested, voucherNominal int64) Discounts {
	points := min64(pointsRequested, baseAmount)
	remaining := baseAmount - points

	coupon := min64(couponRequested, remaining)
	remaining -= coupon

	voucher := min64(voucherNominal, remaining)
	remaining -= voucher

	return Discounts{
		Points:  points,
		Coupon:  coupon,
		Voucher: voucher,
		Final:   remaining,
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
