package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		label   string
		want    Status
		wantErr bool
	}{
		{label: "PAID", want: StatusPaid},
		{label: "paid", want: StatusPaid},
		{label: " shipping ", want: StatusShipping},
		{label: "PENDING", want: StatusPendingPayment},
		{label: "pending_payment", want: StatusPendingPayment},
		{label: "CANCELLED", want: StatusCancelled},
		{label: "DELIVERED", wantErr: true},
		{label: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseStatus(tt.label)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_Transition(t *testing.T) {
	all := []Status{StatusPendingPayment, StatusPaid, StatusShipping, StatusCompleted, StatusCancelled}
	allowed := map[Status]map[Status]bool{
		StatusPendingPayment: {StatusPendingPayment: true, StatusPaid: true, StatusCancelled: true},
		StatusPaid:           {StatusPaid: true, StatusShipping: true, StatusCancelled: true},
		StatusShipping:       {StatusShipping: true, StatusCompleted: true},
		StatusCompleted:      {StatusCompleted: true},
		StatusCancelled:      {StatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				got, err := from.Transition(to)
				if allowed[from][to] {
					require.NoError(t, err)
					assert.Equal(t, to, got)
					return
				}
				var tErr *TransitionError
				require.ErrorAs(t, err, &tErr)
				require.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, from, tErr.From)
				assert.Equal(t, to, tErr.To)
				assert.Equal(t, from, got)
			})
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPendingPayment.Terminal())
	assert.False(t, StatusShipping.Terminal())
}
