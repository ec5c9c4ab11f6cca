package pricing

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/bundle-checkout/internal/model"
)

// GiftTitleSuffix добавляется к названию подарочной строки.
const GiftTitleSuffix = " (Gift)"

var (
	// ErrUnknownSKU возвращается, если SKU отсутствует в каталоге.
	ErrUnknownSKU = errors.New("pricing: unknown sku")
	// ErrNotGiftEligible возвращается при выборе подарка, который нельзя подарить.
	ErrNotGiftEligible = errors.New("pricing: product is not gift eligible")
)

// Selection: выбор покупателя: оплачиваемые SKU, подарки и SKU, добавленные через OTO.
type Selection struct {
	SKUs     []string `json:"skus"`
	GiftSKUs []string `json:"giftSkus"`
	OTOSKUs  []string `json:"otoSkus"`
}

// Cart: строки корзины и итоги одного прохода расчёта.
type Cart struct {
	Lines  []model.CartLine `json:"lines"`
	Totals model.Totals     `json:"totals"`
}

// LineDiscount вычисляет скидку и итоговую цену оплачиваемой строки.
// Скидка уровня и скидка OTO не суммируются: берётся большая.
func LineDiscount(rules *Rules, p model.Product, tier *model.Tier, isOTO bool) (discount, net float64) {
	percentOff, scope := tierTerms(tier)

	eligible := scope == model.ScopeEntireCart || p.Type.IsCourseLike()
	bundleDiscount := 0.0
	if eligible {
		bundleDiscount = Round2(percentOff / 100 * p.MSRP)
	}

	otoDiscount := 0.0
	if isOTO {
		otoDiscount = rules.OTOPolicyFor(p.SKU).Discount(p.MSRP)
	}

	discount = max(bundleDiscount, otoDiscount)
	net = Round2(p.MSRP - discount)
	return discount, net
}

// PriceCart строит строки корзины и итоги. Функция чистая: результат зависит только от аргументов.
func PriceCart(sel Selection, rules *Rules, tier *model.Tier, coupon CouponResult) (Cart, error) {
	oto := toSet(sel.OTOSKUs)
	lines := make([]model.CartLine, 0, len(sel.SKUs)+len(sel.GiftSKUs))

	for _, sku := range dedupe(sel.SKUs) {
		p, ok := rules.Product(sku)
		if !ok {
			return Cart{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
		}
		_, isOTO := oto[sku]
		discount, net := LineDiscount(rules, p, tier, isOTO)
		lines = append(lines, model.CartLine{
			SKU:      p.SKU,
			Title:    p.Title,
			MSRP:     p.MSRP,
			Discount: discount,
			Net:      net,
			Type:     p.Type,
			IsOTO:    isOTO,
		})
	}

	for _, sku := range dedupe(sel.GiftSKUs) {
		p, ok := rules.Product(sku)
		if !ok {
			return Cart{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
		}
		lines = append(lines, GiftLine(p))
	}

	return Cart{
		Lines:  lines,
		Totals: ComputeTotals(lines, coupon),
	}, nil
}

// GiftLine возвращает подарочную строку для товара.
func GiftLine(p model.Product) model.CartLine {
	return model.CartLine{
		SKU:      p.SKU,
		Title:    p.Title + GiftTitleSuffix,
		MSRP:     p.MSRP,
		Discount: p.MSRP,
		Net:      0,
		Type:     p.Type,
		IsGift:   true,
	}
}

// ComputeTotals суммирует оплачиваемые строки и применяет купон к сумме после скидки уровня.
func ComputeTotals(lines []model.CartLine, coupon CouponResult) model.Totals {
	var msrpSum, discountSum float64
	for _, l := range lines {
		if l.IsGift {
			continue
		}
		msrpSum += l.MSRP
		discountSum += l.Discount
	}

	subtotal := Round2(msrpSum)
	discount := Round2(discountSum)

	couponDiscount := 0.0
	if coupon.Valid {
		couponDiscount = Round2(coupon.PercentOff / 100 * (subtotal - discount))
	}

	return model.Totals{
		Subtotal:       subtotal,
		Discount:       discount,
		CouponDiscount: couponDiscount,
		Total:          Round2(subtotal - discount - couponDiscount),
	}
}

func counts(p model.Product) bool {
	return p.Type.IsCourseLike() && p.CountsTowardThreshold
}

// QualifyingCount считает оплачиваемые строки курсов, добавленные не через OTO.
// Неизвестные SKU не учитываются.
func QualifyingCount(lines []model.CartLine, rules *Rules) int {
	n := 0
	for _, l := range lines {
		if l.IsGift || l.IsOTO {
			continue
		}
		if p, ok := rules.Product(l.SKU); ok && counts(p) {
			n++
		}
	}
	return n
}

// Quote: полный расчёт для витрины: корзина, уровень и лимиты подарков.
type Quote struct {
	Cart
	Tier            *model.Tier  `json:"tier"`
	QualifyingCount int          `json:"qualifyingCount"`
	AllowedGifts    int          `json:"allowedGiftCount"`
	RemainingGifts  int          `json:"remainingGifts"`
	Coupon          CouponResult `json:"coupon"`
	RulesVersion    string       `json:"rulesVersion"`
	DroppedGiftSKUs []string     `json:"droppedGiftSkus,omitempty"`
}

// Price выполняет расчёт по выбору покупателя: определяет уровень, проверяет купон,
// отбрасывает подарки сверх лимита и строит корзину.
func Price(sel Selection, couponCode string, rules *Rules) (Quote, error) {
	oto := toSet(sel.OTOSKUs)

	qualifying := 0
	for _, sku := range dedupe(sel.SKUs) {
		p, ok := rules.Product(sku)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
		}
		if _, isOTO := oto[sku]; !isOTO && counts(p) {
			qualifying++
		}
	}

	tier := ResolveTier(qualifying, rules.Tiers)
	allowed := AllowedGiftCount(qualifying, tier)

	gifts := dedupe(sel.GiftSKUs)
	for _, sku := range gifts {
		p, ok := rules.Product(sku)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
		}
		if !p.GiftEligible {
			return Quote{}, fmt.Errorf("%w: %s", ErrNotGiftEligible, sku)
		}
	}

	var dropped []string
	if len(gifts) > allowed {
		dropped = gifts[allowed:]
		gifts = gifts[:allowed]
	}

	coupon := ValidateCoupon(couponCode, rules.Coupons)
	cart, err := PriceCart(Selection{SKUs: sel.SKUs, GiftSKUs: gifts, OTOSKUs: sel.OTOSKUs}, rules, tier, coupon)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Cart:            cart,
		Tier:            tier,
		QualifyingCount: qualifying,
		AllowedGifts:    allowed,
		RemainingGifts:  allowed - len(gifts),
		Coupon:          coupon,
		RulesVersion:    rules.Version,
		DroppedGiftSKUs: dropped,
	}, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
