// Package paymentmethod хранит справочник способов оплаты и фильтрует его по стране, валюте и сумме.
package paymentmethod

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUnknownMethod возвращается при переключении несуществующего способа оплаты.
var ErrUnknownMethod = errors.New("unknown payment method")

// Method описывает способ оплаты. Пустой Countries означает «все страны».
// MinAmount и MaxAmount заданы в центах, 0 означает отсутствие ограничения.
type Method struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Countries           []string `json:"countries"`
	Currencies          []string `json:"currencies"`
	Enabled             bool     `json:"enabled"`
	Priority            int      `json:"priority"`
	StripePaymentMethod string   `json:"stripePaymentMethod,omitempty"`
	External            bool     `json:"external,omitempty"`
	MinAmount           int64    `json:"minAmount,omitempty"`
	MaxAmount           int64    `json:"maxAmount,omitempty"`
}

func (m Method) supports(country, currency string, amount *int64) bool {
	if !m.Enabled {
		return false
	}
	if !slices.Contains(m.Currencies, currency) {
		return false
	}
	if len(m.Countries) > 0 && !slices.Contains(m.Countries, country) {
		return false
	}
	if amount != nil {
		if m.MinAmount > 0 && *amount < m.MinAmount {
			return false
		}
		if m.MaxAmount > 0 && *amount > m.MaxAmount {
			return false
		}
	}
	return true
}

// Registry: справочник способов оплаты. Чтение идёт без блокировок по неизменяемому снимку,
// переключение строит новый снимок и подменяет его.
type Registry struct {
	mu      sync.Mutex
	methods atomic.Pointer[[]Method]
}

// NewRegistry создаёт справочник из переданного списка.
func NewRegistry(methods []Method) *Registry {
	r := &Registry{}
	snapshot := slices.Clone(methods)
	r.methods.Store(&snapshot)
	return r
}

// NewDefaultRegistry создаёт справочник со стандартным набором способов оплаты.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultMethods())
}

// All возвращает все способы оплаты, включая отключённые.
func (r *Registry) All() []Method {
	return slices.Clone(*r.methods.Load())
}

// Get возвращает способ оплаты по идентификатору.
func (r *Registry) Get(id string) (Method, bool) {
	for _, m := range *r.methods.Load() {
		if m.ID == id {
			return m, true
		}
	}
	return Method{}, false
}

// Enabled сообщает, включён ли способ оплаты.
func (r *Registry) Enabled(id string) bool {
	m, ok := r.Get(id)
	return ok && m.Enabled
}

// Available возвращает включённые способы оплаты для страны, валюты и суммы (в центах, может быть nil),
// отсортированные по приоритету.
func (r *Registry) Available(country, currency string, amount *int64) []Method {
	country = strings.ToUpper(strings.TrimSpace(country))
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}

	var out []Method
	for _, m := range *r.methods.Load() {
		if m.supports(country, currency, amount) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// StripeOrder возвращает порядок способов оплаты Stripe для Payment Element.
func (r *Registry) StripeOrder(country, currency string, amount *int64) []string {
	var out []string
	for _, m := range r.Available(country, currency, amount) {
		if m.StripePaymentMethod != "" && !m.External {
			out = append(out, m.StripePaymentMethod)
		}
	}
	return out
}

// External возвращает доступные способы оплаты вне Stripe.
func (r *Registry) External(country, currency string, amount *int64) []Method {
	var out []Method
	for _, m := range r.Available(country, currency, amount) {
		if m.External {
			out = append(out, m)
		}
	}
	return out
}

// Toggle включает или выключает способ оплаты.
func (r *Registry) Toggle(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := slices.Clone(*r.methods.Load())
	idx := slices.IndexFunc(next, func(m Method) bool { return m.ID == id })
	if idx < 0 {
		return ErrUnknownMethod
	}
	next[idx].Enabled = enabled
	r.methods.Store(&next)
	return nil
}

var defaultCurrencies = map[string]string{
	"US": "usd",
	"CA": "cad",
	"GB": "gbp",
	"DE": "eur",
	"FR": "eur",
	"IT": "eur",
	"ES": "eur",
	"NL": "eur",
	"BE": "eur",
	"AT": "eur",
	"CH": "chf",
	"AU": "aud",
	"JP": "jpy",
	"PL": "pln",
	"DK": "dkk",
	"SE": "sek",
	"NO": "nok",
}

// DefaultCurrency возвращает валюту по умолчанию для страны; для неизвестных стран возвращается usd.
func DefaultCurrency(country string) string {
	if c, ok := defaultCurrencies[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return c
	}
	return "usd"
}
