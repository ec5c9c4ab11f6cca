package pricing

import "github.com/mmeshcher/bundle-checkout/internal/model"

// ResolveTier возвращает старший уровень, порог которого не превышает qualifyingCount.
// Уровни не суммируются: третий заменяет первый и второй. Ожидает tiers по возрастанию MinCourses.
func ResolveTier(qualifyingCount int, tiers []model.Tier) *model.Tier {
	if qualifyingCount <= 0 {
		return nil
	}

	var current *model.Tier
	for i := range tiers {
		if tiers[i].MinCourses <= qualifyingCount {
			t := tiers[i]
			current = &t
		}
	}
	return current
}

// AllowedGiftCount возвращает число доступных подарков. При пустой квалифицирующей
// корзине подарков нет, даже если передан устаревший уровень.
func AllowedGiftCount(qualifyingCount int, tier *model.Tier) int {
	if qualifyingCount == 0 || tier == nil {
		return 0
	}
	return tier.GiftCount
}

func tierTerms(tier *model.Tier) (float64, model.DiscountScope) {
	if tier == nil {
		return 0, model.ScopeCoursesOnly
	}
	return tier.PercentOff, tier.Scope
}
