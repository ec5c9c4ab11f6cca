package paymentmethod

var (
	majorCurrencies = []string{"usd", "eur", "gbp", "cad", "aud"}
	klarnaCountries = []string{"US", "CA", "GB", "DE", "AT", "NL", "BE", "CH", "DK", "FI", "NO", "SE"}
	sepaCountries   = []string{"DE", "AT", "NL", "BE", "CH", "DK", "FI", "FR", "IE", "IT", "LU", "NO", "PT", "SE", "ES"}
	amazonCountries = []string{"US", "GB", "DE", "FR", "IT", "ES", "LU", "AT", "BE", "CY", "IE", "NL", "PT"}
)

// DefaultMethods возвращает стандартный набор способов оплаты.
// Внешние способы, кроме PayPal, выключены.
func DefaultMethods() []Method {
	return []Method{
		{
			ID:                  "card",
			Name:                "Credit/Debit Card",
			Description:         "Visa, Mastercard, American Express, and more",
			Currencies:          []string{"usd", "eur", "gbp", "cad", "aud", "jpy"},
			Enabled:             true,
			Priority:            1,
			StripePaymentMethod: "card",
		},
		{
			ID:                  "apple_pay",
			Name:                "Apple Pay",
			Description:         "Pay with Touch ID or Face ID",
			Currencies:          majorCurrencies,
			Enabled:             true,
			Priority:            2,
			StripePaymentMethod: "apple_pay",
		},
		{
			ID:                  "google_pay",
			Name:                "Google Pay",
			Description:         "Pay with one tap using Google Pay",
			Currencies:          majorCurrencies,
			Enabled:             true,
			Priority:            2,
			StripePaymentMethod: "google_pay",
		},
		{
			ID:                  "klarna",
			Name:                "Klarna",
			Description:         "Buy now, pay later in installments",
			Countries:           klarnaCountries,
			Currencies:          []string{"usd", "eur", "gbp", "cad"},
			Enabled:             true,
			Priority:            3,
			StripePaymentMethod: "klarna",
			MinAmount:           1000,
		},
		{
			ID:                  "affirm",
			Name:                "Affirm",
			Description:         "Pay over time with flexible installments",
			Countries:           []string{"US", "CA"},
			Currencies:          []string{"usd", "cad"},
			Enabled:             true,
			Priority:            3,
			StripePaymentMethod: "affirm",
			MinAmount:           5000,
		},
		{
			ID:                  "cashapp",
			Name:                "Cash App Pay",
			Description:         "Pay instantly with Cash App",
			Countries:           []string{"US"},
			Currencies:          []string{"usd"},
			Enabled:             true,
			Priority:            4,
			StripePaymentMethod: "cashapp",
		},
		{
			ID:                  "sepa_debit",
			Name:                "SEPA Direct Debit",
			Description:         "Direct debit from your bank account",
			Countries:           sepaCountries,
			Currencies:          []string{"eur"},
			Enabled:             true,
			Priority:            3,
			StripePaymentMethod: "sepa_debit",
		},
		{
			ID:                  "ideal",
			Name:                "iDEAL",
			Description:         "Pay with your Dutch bank account",
			Countries:           []string{"NL"},
			Currencies:          []string{"eur"},
			Enabled:             true,
			Priority:            2,
			StripePaymentMethod: "ideal",
		},
		{
			ID:                  "sofort",
			Name:                "Sofort",
			Description:         "Instant bank transfers",
			Countries:           []string{"DE", "AT"},
			Currencies:          []string{"eur"},
			Enabled:             true,
			Priority:            3,
			StripePaymentMethod: "sofort",
		},
		{
			ID:                  "bancontact",
			Name:                "Bancontact",
			Description:         "Popular payment method in Belgium",
			Countries:           []string{"BE"},
			Currencies:          []string{"eur"},
			Enabled:             true,
			Priority:            2,
			StripePaymentMethod: "bancontact",
		},
		{
			ID:                  "giropay",
			Name:                "Giropay",
			Description:         "German online banking payment",
			Countries:           []string{"DE"},
			Currencies:          []string{"eur"},
			Enabled:             true,
			Priority:            3,
			StripePaymentMethod: "giropay",
		},
		{
			ID:                  "p24",
			Name:                "Przelewy24",
			Description:         "Popular payment method in Poland",
			Countries:           []string{"PL"},
			Currencies:          []string{"eur", "pln"},
			Enabled:             true,
			Priority:            3,
			StripePaymentMethod: "p24",
		},
		{
			ID:          "paypal",
			Name:        "PayPal",
			Description: "Pay with your PayPal account",
			Currencies:  majorCurrencies,
			Enabled:     true,
			Priority:    2,
			External:    true,
		},
		{
			ID:          "amazon_pay",
			Name:        "Amazon Pay",
			Description: "Pay with your Amazon account",
			Countries:   amazonCountries,
			Currencies:  []string{"usd", "eur", "gbp"},
			Priority:    3,
			External:    true,
		},
		{
			ID:          "crypto",
			Name:        "Cryptocurrency",
			Description: "Pay with Bitcoin, Ethereum, and more",
			Currencies:  []string{"usd", "eur"},
			Priority:    5,
			External:    true,
		},
	}
}
