package codelist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/codelist"
)

func TestDefault_LoadsAllSets(t *testing.T) {
	reg, err := codelist.Default()
	require.NoError(t, err)

	for _, name := range []string{
		codelist.Currency,
		codelist.Country,
		codelist.DocumentType,
		codelist.VATCategory,
		codelist.PaymentMeans,
		codelist.UnitOfMeasure,
		codelist.ElectronicScheme,
		codelist.Identifier,
		codelist.VATExemption,
	} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "code list %s should be registered", name)
	}
}

func TestContains(t *testing.T) {
	reg, err := codelist.Default()
	require.NoError(t, err)

	tests := []struct {
		set      string
		code     string
		expected bool
	}{
		{codelist.Currency, "EUR", true},
		{codelist.Currency, "USD", true},
		{codelist.Currency, "eur", false},
		{codelist.Currency, "EURO", false},
		{codelist.Country, "DE", true},
		{codelist.Country, "FR", true},
		{codelist.Country, "de", false},
		{codelist.Country, "DEU", false},
		{codelist.DocumentType, "380", true},
		{codelist.DocumentType, "381", true},
		{codelist.DocumentType, "999", false},
		{codelist.VATCategory, "S", true},
		{codelist.VATCategory, "X", false},
		{codelist.UnitOfMeasure, "C62", true},
		{codelist.PaymentMeans, "58", true},
		{codelist.ElectronicScheme, "EM", true},
	}

	for _, tt := range tests {
		t.Run(tt.set+"/"+tt.code, func(t *testing.T) {
			s, ok := reg.Get(tt.set)
			require.True(t, ok)
			assert.Equal(t, tt.expected, s.Contains(tt.code))
		})
	}
}

func TestParse(t *testing.T) {
	sets, err := codelist.Parse([]byte(`
B:
  description: second
  codes: ["x"]
A:
  description: first
  codes: ["1", "2"]
`))
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "A", sets[0].Name())
	assert.True(t, sets[0].Contains("2"))
	assert.False(t, sets[1].Contains("1"))
}

func TestParse_EmptyList(t *testing.T) {
	_, err := codelist.Parse([]byte("A:\n  codes: []\n"))
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	reg := codelist.NewRegistry()
	reg.Register(codelist.NewTable("TEST", "test", "a", "b"))

	assert.Equal(t, []string{"TEST"}, reg.Names())
	s, ok := reg.Get("TEST")
	require.True(t, ok)
	assert.True(t, s.Contains("a"))
}
