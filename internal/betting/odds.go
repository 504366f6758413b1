package betting

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxOdds é o teto da coluna odds (INTEGER)
const MaxOdds = math.MaxInt32

var hundred = decimal.NewFromInt(100)

// ParseOdds converte odd decimal ("2.50") para centésimos (250).
// Mais de duas casas decimais é rejeitado em vez de arredondado.
func ParseOdds(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOdds, s)
	}
	h := d.Mul(hundred)
	if !h.Equal(h.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than 2 decimal places", ErrInvalidOdds, s)
	}
	v := h.IntPart()
	if v <= 100 || v > MaxOdds {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOdds, s)
	}
	return v, nil
}

// FormatOdds é o inverso de ParseOdds
func FormatOdds(hundredths int64) string {
	return decimal.New(hundredths, -2).StringFixed(2)
}

// Payout = floor(stake * odds / 100); stake e odds são positivos e
// payoutFits(stake, odds) já foi verificado na criação da aposta.
func Payout(stake, odds int64) int64 {
	return stake * odds / 100
}

// payoutFits diz se stake*odds cabe em int64 sem estourar
func payoutFits(stake, odds int64) bool {
	if stake <= 0 || odds <= 0 {
		return false
	}
	hi, lo := bits.Mul64(uint64(stake), uint64(odds))
	return hi == 0 && lo <= math.MaxInt64
}
