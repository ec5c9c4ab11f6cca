package pricing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	r, err := DefaultRules()
	require.NoError(t, err)

	assert.NotEmpty(t, r.Version)
	assert.Equal(t, "usd", r.Currency)
	assert.Len(t, r.Products, 13)
	assert.Len(t, r.Tiers, 3)

	p, ok := r.Product("COURSE_AVOIDANT_MAN")
	require.True(t, ok)
	assert.Equal(t, 497.0, p.MSRP)

	assert.Equal(t, OTOPolicy{Kind: OTOFixedAmount, Value: 403}, r.OTOPolicyFor("breakthrough-call"))
	assert.Equal(t, OTOPolicy{Kind: OTOPercentage, Value: 50}, r.OTOPolicyFor("GUIDE_4_STYLES"))

	sorted := r.SortedProducts()
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1].SortOrder, sorted[i].SortOrder)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate sku",
			yaml: `
oto: {default: {kind: percentage, value: 50}}
products:
  - {sku: A, type: course, msrp: 1}
  - {sku: A, type: course, msrp: 2}
`,
		},
		{
			name: "negative msrp",
			yaml: `
oto: {default: {kind: percentage, value: 50}}
products:
  - {sku: A, type: course, msrp: -1}
`,
		},
		{
			name: "unknown scope",
			yaml: `
oto: {default: {kind: percentage, value: 50}}
tiers:
  - {id: 1, min_courses: 1, percent_off: 5, scope: everything}
`,
		},
		{
			name: "unknown oto kind",
			yaml: `
oto: {default: {kind: bogus, value: 50}}
`,
		},
		{
			name: "coupon out of range",
			yaml: `
oto: {default: {kind: percentage, value: 50}}
coupons:
  BIG: {percent_off: 150}
`,
		},
		{
			name: "broken yaml",
			yaml: "tiers: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}

func TestParseRules_SortsTiersAndNormalizesCoupons(t *testing.T) {
	r, err := ParseRules([]byte(`
currency: EUR
oto: {default: {kind: percentage, value: 50}}
tiers:
  - {id: 2, min_courses: 4, percent_off: 15, scope: entire_cart}
  - {id: 1, min_courses: 2, percent_off: 5, scope: courses_only}
coupons:
  spring5: {percent_off: 5}
`))
	require.NoError(t, err)

	assert.Equal(t, "eur", r.Currency)
	assert.Equal(t, 1, r.Tiers[0].ID)
	assert.Equal(t, 2, r.Tiers[1].ID)
	assert.True(t, ValidateCoupon("Spring5", r.Coupons).Valid)
}

func TestStore_ReloadSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, defaultRules, 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)
	before := s.Rules()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r := s.Rules()
				_, ok := r.Product("COURSE_AVOIDANT_MAN")
				assert.True(t, ok)
			}
		}()
	}

	require.NoError(t, s.Reload())
	wg.Wait()

	assert.NotSame(t, before, s.Rules())
}

func TestStore_ReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, defaultRules, 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)
	before := s.Rules()

	require.NoError(t, os.WriteFile(path, []byte("tiers: ["), 0o600))
	assert.Error(t, s.Reload())
	assert.Same(t, before, s.Rules())
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(132552), ToCents(1325.52))
	assert.Equal(t, int64(24850), ToCents(248.5))
	assert.Equal(t, int64(1), ToCents(0.01))
	assert.Equal(t, "1325.52", FormatCents(132552))
	assert.Equal(t, 397.6, FromCents(39760))
}
