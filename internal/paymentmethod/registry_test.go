package paymentmethod

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(methods []Method) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, m.ID)
	}
	return out
}

func cents(v int64) *int64 { return &v }

func TestAvailable(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		name     string
		country  string
		currency string
		amount   *int64
		want     []string
	}{
		{
			name:     "us without amount",
			country:  "us",
			currency: "USD",
			want:     []string{"card", "apple_pay", "google_pay", "paypal", "klarna", "affirm", "cashapp"},
		},
		{
			name:     "us below affirm minimum",
			country:  "US",
			currency: "usd",
			amount:   cents(2000),
			want:     []string{"card", "apple_pay", "google_pay", "paypal", "klarna", "cashapp"},
		},
		{
			name:     "us below klarna minimum",
			country:  "US",
			currency: "usd",
			amount:   cents(500),
			want:     []string{"card", "apple_pay", "google_pay", "paypal", "cashapp"},
		},
		{
			name:     "netherlands in euro",
			country:  "NL",
			currency: "eur",
			want:     []string{"card", "apple_pay", "google_pay", "ideal", "paypal", "klarna", "sepa_debit"},
		},
		{
			name:     "unsupported currency",
			country:  "US",
			currency: "xyz",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(r.Available(tt.country, tt.currency, tt.amount)))
		})
	}
}

func TestStripeOrderAndExternal(t *testing.T) {
	r := NewDefaultRegistry()

	assert.Equal(t, []string{"card", "apple_pay", "google_pay", "klarna", "cashapp"}, r.StripeOrder("US", "usd", cents(2000)))
	assert.Equal(t, []string{"paypal"}, ids(r.External("US", "usd", nil)))
}

func TestToggle(t *testing.T) {
	r := NewDefaultRegistry()

	require.NoError(t, r.Toggle("paypal", false))
	assert.False(t, r.Enabled("paypal"))
	assert.Empty(t, r.External("US", "usd", nil))

	require.NoError(t, r.Toggle("amazon_pay", true))
	assert.Equal(t, []string{"amazon_pay"}, ids(r.External("US", "usd", nil)))

	assert.ErrorIs(t, r.Toggle("cheque", true), ErrUnknownMethod)
}

func TestToggle_ReadersSeeWholeSnapshots(t *testing.T) {
	r := NewDefaultRegistry()
	before := r.All()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.Len(t, r.All(), len(before))
				_ = r.Available("US", "usd", nil)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		require.NoError(t, r.Toggle("card", j%2 == 0))
	}
	wg.Wait()

	assert.True(t, before[0].Enabled, "earlier snapshot must not change")
}

func TestDefaultCurrency(t *testing.T) {
	assert.Equal(t, "eur", DefaultCurrency("de"))
	assert.Equal(t, "gbp", DefaultCurrency("GB"))
	assert.Equal(t, "usd", DefaultCurrency("BR"))
}
