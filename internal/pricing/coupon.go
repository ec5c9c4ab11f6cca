package pricing

import "strings"

// CouponResult: результат проверки кода купона.
type CouponResult struct {
	Valid      bool    `json:"valid"`
	PercentOff float64 `json:"percentOff"`
}

// ValidateCoupon ищет код без учёта регистра. Неизвестный код даёт {false, 0}.
func ValidateCoupon(code string, coupons map[string]Coupon) CouponResult {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return CouponResult{}
	}

	c, ok := coupons[code]
	if !ok {
		return CouponResult{}
	}
	return CouponResult{Valid: true, PercentOff: c.PercentOff}
}

// NormalizeCouponCode приводит код к виду, в котором он хранится в заказе.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
