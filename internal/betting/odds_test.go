package betting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOdds(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "2.50", want: 250},
		{in: "2.5", want: 250},
		{in: " 1.01 ", want: 101},
		{in: "2", want: 200},
		{in: "1.00", wantErr: true},
		{in: "0.90", wantErr: true},
		{in: "1.855", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "21474836.48", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOdds(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOdds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatOdds(t *testing.T) {
	assert.Equal(t, "2.50", FormatOdds(250))
	assert.Equal(t, "1.01", FormatOdds(101))
	assert.Equal(t, "12.00", FormatOdds(1200))
}

func TestPayout_Floors(t *testing.T) {
	assert.Equal(t, int64(500), Payout(200, 250))
	assert.Equal(t, int64(400), Payout(200, 200))
	assert.Equal(t, int64(185), Payout(100, 185))
	assert.Equal(t, int64(1), Payout(1, 199))
	assert.Equal(t, int64(85_899_345_880_000_000), Payout(4_000_000_000, MaxOdds))
}

func TestPayoutFits(t *testing.T) {
	tests := []struct {
		name  string
		stake int64
		odds  int64
		want  bool
	}{
		{name: "small", stake: 200, odds: 250, want: true},
		{name: "large stake at max odds", stake: 4_000_000_000, odds: MaxOdds, want: true},
		{name: "product overflows", stake: math.MaxInt64 / 100, odds: 250, want: false},
		{name: "huge stake at max odds", stake: 5_000_000_000_000, odds: MaxOdds, want: false},
		{name: "zero stake", stake: 0, odds: 250, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payoutFits(tt.stake, tt.odds))
		})
	}
}
