package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round2 округляет сумму до центов. Применяется после каждой арифметической операции.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToCents переводит сумму в долларах в целые центы для платёжных систем и БД.
func ToCents(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(hundred).Round(0).IntPart()
}

// FromCents переводит центы в доллары.
func FromCents(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// FormatCents возвращает сумму в виде "123.45".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseAmount разбирает десятичную строку платёжной системы ("12.34") в центы.
func ParseAmount(v string) (int64, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", v, err)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}
