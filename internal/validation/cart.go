// Package validation содержит серверную проверку корзины и входных данных оформления заказа.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
)

const (
	msrpTolerance   = 0.01
	amountTolerance = 0.02
)

// ErrorKind: причина отказа при проверке корзины. Наружу не передаётся, только в журнал.
type ErrorKind string

const (
	KindEmptyCart       ErrorKind = "EmptyCart"
	KindUnknownProduct  ErrorKind = "UnknownProduct"
	KindPriceTampering  ErrorKind = "PriceTampering"
	KindInvalidDiscount ErrorKind = "InvalidDiscount"
	KindInvalidGift     ErrorKind = "InvalidGift"
	KindTooManyGifts    ErrorKind = "TooManyGifts"
	KindInvalidCoupon   ErrorKind = "InvalidCoupon"
	KindTotalsMismatch  ErrorKind = "TotalsMismatch"
)

func (k ErrorKind) Error() string {
	return "cart validation failed: " + string(k)
}

// Result: итог проверки корзины. При Valid=true содержит пересчитанные сервером строки и суммы.
type Result struct {
	Valid           bool
	Kind            ErrorKind
	Detail          string
	Lines           []model.CartLine
	Totals          model.Totals
	Tier            *model.Tier
	QualifyingCount int
	Coupon          pricing.CouponResult
}

// Err возвращает причину отказа как ошибку или nil для корректной корзины.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return r.Kind
}

func reject(kind ErrorKind, format string, args ...any) Result {
	return Result{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ValidateCart заново рассчитывает корзину по серверному каталогу и сравнивает с данными клиента.
// От клиента берутся только SKU, признаки подарка и OTO. Проверки выполняются по порядку,
// первая неудачная прерывает проверку. Корзина без оплачиваемых строк отклоняется после проверки подарков.
func ValidateCart(rules *pricing.Rules, lines []model.CartLine, totals model.Totals, couponCode string) Result {
	products := make([]model.Product, len(lines))
	for i, l := range lines {
		p, ok := rules.Product(l.SKU)
		if !ok {
			return reject(KindUnknownProduct, "sku %q not in catalog", l.SKU)
		}
		if !l.IsGift && math.Abs(p.MSRP-l.MSRP) > msrpTolerance {
			return reject(KindPriceTampering, "sku %q msrp %.2f, catalog %.2f", l.SKU, l.MSRP, p.MSRP)
		}
		products[i] = p
	}

	qualifying := pricing.QualifyingCount(lines, rules)
	tier := pricing.ResolveTier(qualifying, rules.Tiers)

	recomputed := make([]model.CartLine, 0, len(lines))
	for i, l := range lines {
		if l.IsGift {
			continue
		}
		p := products[i]
		discount, net := pricing.LineDiscount(rules, p, tier, l.IsOTO)
		if math.Abs(discount-l.Discount) > amountTolerance || math.Abs(net-l.Net) > amountTolerance {
			return reject(KindInvalidDiscount, "sku %q discount %.2f/%.2f net %.2f/%.2f oto=%t",
				l.SKU, l.Discount, discount, l.Net, net, l.IsOTO)
		}
		recomputed = append(recomputed, model.CartLine{
			SKU:      p.SKU,
			Title:    p.Title,
			MSRP:     p.MSRP,
			Discount: discount,
			Net:      net,
			Type:     p.Type,
			IsOTO:    l.IsOTO,
		})
	}

	gifts := 0
	for i, l := range lines {
		if !l.IsGift {
			continue
		}
		p := products[i]
		if !p.GiftEligible {
			return reject(KindInvalidGift, "sku %q is not gift eligible", l.SKU)
		}
		if math.Abs(l.Discount-p.MSRP) > msrpTolerance || l.Net != 0 {
			return reject(KindInvalidGift, "sku %q gift priced discount %.2f net %.2f", l.SKU, l.Discount, l.Net)
		}
		recomputed = append(recomputed, pricing.GiftLine(p))
		gifts++
	}

	if allowed := pricing.AllowedGiftCount(qualifying, tier); gifts > allowed {
		return reject(KindTooManyGifts, "%d gifts, %d allowed", gifts, allowed)
	}

	if len(recomputed) == gifts {
		return reject(KindEmptyCart, "no paid lines in cart")
	}

	var coupon pricing.CouponResult
	if strings.TrimSpace(couponCode) != "" {
		coupon = pricing.ValidateCoupon(couponCode, rules.Coupons)
		if !coupon.Valid {
			return reject(KindInvalidCoupon, "coupon %q not recognised", couponCode)
		}
	}

	want := pricing.ComputeTotals(recomputed, coupon)
	if !totalsMatch(want, totals) {
		return reject(KindTotalsMismatch, "calculated %+v, provided %+v", want, totals)
	}

	return Result{
		Valid:           true,
		Lines:           recomputed,
		Totals:          want,
		Tier:            tier,
		QualifyingCount: qualifying,
		Coupon:          coupon,
	}
}

func totalsMatch(want, got model.Totals) bool {
	return math.Abs(want.Subtotal-got.Subtotal) <= amountTolerance &&
		math.Abs(want.Discount-got.Discount) <= amountTolerance &&
		math.Abs(want.CouponDiscount-got.CouponDiscount) <= amountTolerance &&
		math.Abs(want.Total-got.Total) <= amountTolerance
}
