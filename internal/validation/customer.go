package validation

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/mmeshcher/bundle-checkout/internal/model"
)

// ErrInvalidCustomer возвращается, если в данных покупателя нет обязательных полей.
var ErrInvalidCustomer = errors.New("invalid customer")

// ValidateCustomer проверяет обязательные поля покупателя: email, имя и фамилию.
func ValidateCustomer(c model.Customer) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return ErrInvalidCustomer
	}
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return ErrInvalidCustomer
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidCustomer
	}
	return nil
}
