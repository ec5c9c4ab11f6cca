// Package pricing содержит каталог, правила скидок и расчёт корзины.
// Один и тот же код используется для отображения цен клиенту и для авторизации оплаты.
package pricing

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/bundle-checkout/internal/model"
)

//go:embed rules.yaml
var defaultRules []byte

// ErrInvalidRules возвращается, если файл правил не проходит проверку.
var ErrInvalidRules = errors.New("pricing: invalid rules")

// Coupon описывает купон с процентной скидкой.
type Coupon struct {
	PercentOff  float64 `json:"percentOff" yaml:"percent_off"`
	Description string  `json:"description" yaml:"description"`
}

// OTOKind: вид скидки разового предложения.
type OTOKind string

const (
	OTOPercentage  OTOKind = "percentage"
	OTOFixedAmount OTOKind = "fixed_amount"
)

// OTOPolicy описывает скидку для товара, добавленного через разовое предложение.
type OTOPolicy struct {
	Kind  OTOKind `json:"kind" yaml:"kind"`
	Value float64 `json:"value" yaml:"value"`
}

// Discount возвращает скидку по политике для указанной цены.
func (p OTOPolicy) Discount(msrp float64) float64 {
	switch p.Kind {
	case OTOFixedAmount:
		return Round2(min(p.Value, msrp))
	case OTOPercentage:
		return Round2(p.Value / 100 * msrp)
	default:
		return 0
	}
}

// OTOConfig содержит политику по умолчанию и исключения по SKU.
type OTOConfig struct {
	Default   OTOPolicy            `json:"default" yaml:"default"`
	Overrides map[string]OTOPolicy `json:"overrides,omitempty" yaml:"overrides"`
}

// Rules: неизменяемый снимок каталога, уровней, купонов и правил OTO.
type Rules struct {
	Version  string            `json:"version" yaml:"version"`
	Currency string            `json:"currency" yaml:"currency"`
	Tiers    []model.Tier      `json:"tiers" yaml:"tiers"`
	Coupons  map[string]Coupon `json:"-" yaml:"coupons"`
	OTO      OTOConfig         `json:"oto" yaml:"oto"`
	Products []model.Product   `json:"products" yaml:"products"`

	bySKU map[string]model.Product
}

// DefaultRules разбирает встроенный файл правил.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules читает правила из файла; пустой путь означает встроенные правила.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules разбирает и проверяет YAML с правилами ценообразования.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeCatalog разбирает опубликованный JSON-артефакт правил. Коды купонов в нём отсутствуют,
// поэтому купон при расчёте по такому снимку не применяется.
func DecodeCatalog(data []byte) (*Rules, error) {
	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) init() error {
	if r.Currency == "" {
		r.Currency = "usd"
	}
	r.Currency = strings.ToLower(r.Currency)

	r.bySKU = make(map[string]model.Product, len(r.Products))
	for _, p := range r.Products {
		if p.SKU == "" {
			return fmt.Errorf("%w: product without sku", ErrInvalidRules)
		}
		if _, dup := r.bySKU[p.SKU]; dup {
			return fmt.Errorf("%w: duplicate sku %s", ErrInvalidRules, p.SKU)
		}
		if p.MSRP < 0 {
			return fmt.Errorf("%w: negative msrp for %s", ErrInvalidRules, p.SKU)
		}
		r.bySKU[p.SKU] = p
	}

	for _, t := range r.Tiers {
		if t.PercentOff < 0 || t.PercentOff > 100 {
			return fmt.Errorf("%w: tier %d percent off out of range", ErrInvalidRules, t.ID)
		}
		if t.Scope != model.ScopeCoursesOnly && t.Scope != model.ScopeEntireCart {
			return fmt.Errorf("%w: tier %d has unknown scope %q", ErrInvalidRules, t.ID, t.Scope)
		}
	}
	sort.SliceStable(r.Tiers, func(i, j int) bool {
		return r.Tiers[i].MinCourses < r.Tiers[j].MinCourses
	})

	coupons := make(map[string]Coupon, len(r.Coupons))
	for code, c := range r.Coupons {
		if c.PercentOff <= 0 || c.PercentOff > 100 {
			return fmt.Errorf("%w: coupon %s percent off out of range", ErrInvalidRules, code)
		}
		coupons[strings.ToUpper(strings.TrimSpace(code))] = c
	}
	r.Coupons = coupons

	policies := append([]OTOPolicy{r.OTO.Default}, mapValues(r.OTO.Overrides)...)
	for _, p := range policies {
		if p.Kind != OTOPercentage && p.Kind != OTOFixedAmount {
			return fmt.Errorf("%w: unknown oto kind %q", ErrInvalidRules, p.Kind)
		}
		if p.Value < 0 {
			return fmt.Errorf("%w: negative oto value", ErrInvalidRules)
		}
	}

	return nil
}

// Product возвращает товар каталога по SKU.
func (r *Rules) Product(sku string) (model.Product, bool) {
	p, ok := r.bySKU[sku]
	return p, ok
}

// OTOPolicyFor возвращает политику разового предложения для SKU.
func (r *Rules) OTOPolicyFor(sku string) OTOPolicy {
	if p, ok := r.OTO.Overrides[sku]; ok {
		return p
	}
	return r.OTO.Default
}

// SortedProducts возвращает копию каталога, упорядоченную по sort_order.
func (r *Rules) SortedProducts() []model.Product {
	out := make([]model.Product, len(r.Products))
	copy(out, r.Products)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

func mapValues(m map[string]OTOPolicy) []OTOPolicy {
	out := make([]OTOPolicy, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// Store хранит текущий снимок правил. Читатели получают снимок целиком,
// перезагрузка подменяет указатель атомарно.
type Store struct {
	path    string
	current atomic.Pointer[Rules]
}

// NewStore загружает правила из path (или встроенные) и возвращает хранилище.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore оборачивает готовый снимок правил.
func NewStaticStore(r *Rules) *Store {
	s := &Store{}
	s.current.Store(r)
	return s
}

// Rules возвращает текущий снимок.
func (s *Store) Rules() *Rules {
	return s.current.Load()
}

// Reload перечитывает источник правил и подменяет снимок. При ошибке остаётся прежний снимок.
func (s *Store) Reload() error {
	r, err := LoadRules(s.path)
	if err != nil {
		return err
	}
	s.current.Store(r)
	return nil
}
