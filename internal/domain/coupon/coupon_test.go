package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscount(t *testing.T) {
	tests := []struct {
		name    string
		percent string
		wantErr bool
	}{
		{name: "zero", percent: "0"},
		{name: "typical", percent: "10"},
		{name: "everything free", percent: "100"},
		{name: "negative", percent: "-5", wantErr: true},
		{name: "over hundred", percent: "150", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDiscount("CODE", decimal.RequireFromString(tt.percent))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNotApplicable)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "CODE", d.Code)
		})
	}
}

func TestDiscount_AmountFor(t *testing.T) {
	tests := []struct {
		name     string
		percent  string
		subtotal string
		want     string
	}{
		{name: "ten percent", percent: "10", subtotal: "24.5", want: "2.45"},
		{name: "rounds to cents", percent: "18", subtotal: "8.33", want: "1.5"},
		{name: "zero percent", percent: "0", subtotal: "99.99", want: "0"},
		{name: "full", percent: "100", subtotal: "12.34", want: "12.34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Discount{Percent: decimal.RequireFromString(tt.percent)}
			got := d.AmountFor(decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got),
				"expected %s, got %s", tt.want, got)
		})
	}
}
