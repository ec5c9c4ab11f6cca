package service

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
)

const metadataTextLimit = 450

// orderNumber формирует номер заказа: для Stripe «Имя Фамилия - #77NNNN», для PayPal «ORD-<unixms>-<RAND>».
func orderNumber(provider model.PaymentProvider, c model.Customer, now time.Time) string {
	if provider == model.ProviderPayPal {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
		return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
	}
	return fmt.Sprintf("%s - #77%d", c.FullName(), 1000+rand.IntN(9000))
}

func isBundleCourse(t model.ProductType) bool {
	return t == model.ProductTypeCourse || t == model.ProductTypeGroupCoaching
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// orderDescription формирует описание платежа, например «3-Course Bundle + 1 Add-on (1 Gift) - Jane Doe».
func orderDescription(lines []model.CartLine, c model.Customer) string {
	name := c.FullName()
	if len(lines) == 1 {
		return lines[0].Title + " - " + name
	}

	var courses, addons, gifts int
	for _, l := range lines {
		switch {
		case isBundleCourse(l.Type):
			courses++
		case l.Type == model.ProductTypeAddon:
			addons++
		}
		if l.IsGift {
			gifts++
		}
	}

	var b strings.Builder
	if courses > 0 {
		fmt.Fprintf(&b, "%d-Course Bundle", courses)
	}
	if addons > 0 {
		if b.Len() > 0 {
			b.WriteString(" + ")
		}
		b.WriteString(plural(addons, "Add-on"))
	}
	if gifts > 0 {
		fmt.Fprintf(&b, " (%s)", plural(gifts, "Gift"))
	}
	if b.Len() == 0 {
		b.WriteString(plural(len(lines), "Item"))
	}
	return strings.TrimSpace(b.String()) + " - " + name
}

// orderSummary считает агрегаты по строкам заказа.
func orderSummary(lines []model.CartLine) model.OrderSummary {
	var s model.OrderSummary
	titles := make([]string, 0, len(lines))
	for _, l := range lines {
		titles = append(titles, l.Title)
		switch l.Type {
		case model.ProductTypeCourse:
			s.CoursesCount++
		case model.ProductTypeAssessment:
			s.AssessmentsCount++
		case model.ProductTypeAddon:
			s.AddonsCount++
		case model.ProductTypeGroupCoaching:
			s.GroupCoachingCount++
		case model.ProductTypeConsultation:
			s.ConsultationsCount++
		}
		if l.IsOTO && !s.OTOAccepted {
			s.OTOAccepted = true
			s.OTOProductSKU = l.SKU
		}
	}
	s.LineItems = strings.Join(titles, ", ")
	return s
}

// orderItems переводит проверенные строки корзины в строки заказа в центах.
func orderItems(lines []model.CartLine) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.OrderItem{
			SKU:           l.SKU,
			Title:         l.Title,
			PriceCents:    pricing.ToCents(l.MSRP),
			DiscountCents: pricing.ToCents(l.Discount),
			IsGift:        l.IsGift,
			IsOTO:         l.IsOTO,
		})
	}
	return items
}

// formatAmount возвращает сумму с кодом валюты и разделителями разрядов, например «USD 1,325.52».
func formatAmount(cents int64, code string) string {
	p := message.NewPrinter(language.English)
	amount := p.Sprintf("%.2f", pricing.FromCents(cents))
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return amount
	}
	return unit.String() + " " + amount
}

// paymentMetadata формирует метаданные платежа для личного кабинета платёжной системы.
func paymentMetadata(o *model.Order, lines []model.CartLine, totals model.Totals, rulesVersion, currencyCode string) map[string]string {
	var courses, addons, gifts int
	titles := make([]string, 0, len(lines))
	types := make([]string, 0, len(lines))
	for _, l := range lines {
		titles = append(titles, l.Title)
		types = append(types, string(l.Type))
		switch {
		case isBundleCourse(l.Type):
			courses++
		case l.Type == model.ProductTypeAddon:
			addons++
		}
		if l.IsGift {
			gifts++
		}
	}

	c := o.Customer
	return map[string]string{
		"source":              "Bundle Builder",
		"order_id":            o.ID,
		"order_number":        o.Number,
		"customer_name":       c.FullName(),
		"customer_phone":      c.Phone,
		"customer_country":    c.Country,
		"sms_consent":         strconv.FormatBool(c.SMSConsent),
		"newsletter_opt_in":   strconv.FormatBool(c.Newsletter),
		"item_count":          strconv.Itoa(len(lines)),
		"course_count":        strconv.Itoa(courses),
		"addon_count":         strconv.Itoa(addons),
		"gift_count":          strconv.Itoa(gifts),
		"total_savings_cents": strconv.FormatInt(pricing.ToCents(totals.Discount), 10),
		"total_display":       formatAmount(o.TotalCents, currencyCode),
		"product_titles":      truncate(strings.Join(titles, ", "), metadataTextLimit),
		"product_types":       truncate(strings.Join(types, ", "), metadataTextLimit),
		"rules_version":       rulesVersion,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
