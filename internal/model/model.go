// Package model содержит доменные сущности сервиса оформления заказов.
package model

import "time"

// ProductType описывает вид товара в каталоге.
type ProductType string

const (
	ProductTypeCourse        ProductType = "course"
	ProductTypeGroupCoaching ProductType = "group_coaching"
	ProductTypeAssessment    ProductType = "assessment"
	ProductTypeAddon         ProductType = "addon"
	ProductTypeConsultation  ProductType = "consultation"
	ProductTypeWaitlist      ProductType = "waitlist"
)

// IsCourseLike сообщает, относится ли тип к курсам (участвует в скидке courses_only и в подсчёте уровня).
func (t ProductType) IsCourseLike() bool {
	switch t {
	case ProductTypeCourse, ProductTypeGroupCoaching, ProductTypeAssessment, ProductTypeConsultation:
		return true
	default:
		return false
	}
}

// Product описывает позицию каталога. Значения неизменяемы после загрузки.
type Product struct {
	SKU                   string      `json:"sku" yaml:"sku"`
	Title                 string      `json:"title" yaml:"title"`
	Type                  ProductType `json:"type" yaml:"type"`
	MSRP                  float64     `json:"msrp" yaml:"msrp"`
	CountsTowardThreshold bool        `json:"countsTowardThreshold" yaml:"counts_toward_threshold"`
	GiftEligible          bool        `json:"giftEligible" yaml:"gift_eligible"`
	SortOrder             int         `json:"sortOrder" yaml:"sort_order"`
}

// DiscountScope определяет, к каким строкам корзины применяется скидка уровня.
type DiscountScope string

const (
	ScopeCoursesOnly DiscountScope = "courses_only"
	ScopeEntireCart  DiscountScope = "entire_cart"
)

// Tier описывает ступень скидки за количество курсов.
type Tier struct {
	ID         int           `json:"id" yaml:"id"`
	MinCourses int           `json:"minCourses" yaml:"min_courses"`
	PercentOff float64       `json:"percentOff" yaml:"percent_off"`
	Scope      DiscountScope `json:"scope" yaml:"scope"`
	GiftCount  int           `json:"giftCount" yaml:"gift_count"`
}

// CartLine: вычисляемая строка корзины. Никогда не хранится как источник истины.
type CartLine struct {
	SKU      string      `json:"sku"`
	Title    string      `json:"title"`
	MSRP     float64     `json:"msrp"`
	Discount float64     `json:"discount"`
	Net      float64     `json:"net"`
	Type     ProductType `json:"type"`
	IsGift   bool        `json:"isGift"`
	IsOTO    bool        `json:"isOTO,omitempty"`
}

// Totals содержит итоговые суммы корзины в долларах.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	Discount       float64 `json:"discount"`
	CouponDiscount float64 `json:"couponDiscount"`
	Total          float64 `json:"total"`
}

// Customer содержит данные покупателя из формы оформления.
type Customer struct {
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Phone         string `json:"phone,omitempty"`
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	ZipCode       string `json:"zipCode,omitempty"`
	Country       string `json:"country,omitempty"`
	Newsletter    bool   `json:"newsletter,omitempty"`
	SMSConsent    bool   `json:"smsConsent,omitempty"`
}

// FullName возвращает имя и фамилию покупателя.
func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// OrderStatus описывает статус оплаты заказа.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// PaymentProvider определяет платёжную систему заказа.
type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
)

// Order описывает сохранённый заказ. Суммы в центах фиксируются при создании.
type Order struct {
	ID                  string
	Number              string
	Status              OrderStatus
	Provider            PaymentProvider
	ProviderReference   string
	SubtotalCents       int64
	DiscountCents       int64
	CouponDiscountCents int64
	CouponCode          string
	TotalCents          int64
	PaymentFeesCents    int64
	Customer            Customer
	Summary             OrderSummary
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderSummary содержит агрегаты по составу заказа.
type OrderSummary struct {
	LineItems          string
	CoursesCount       int
	AssessmentsCount   int
	AddonsCount        int
	GroupCoachingCount int
	ConsultationsCount int
	OTOAccepted        bool
	OTOProductSKU      string
}

// OrderItem описывает строку заказа.
type OrderItem struct {
	SKU           string
	Title         string
	PriceCents    int64
	DiscountCents int64
	IsGift        bool
	IsOTO         bool
}
