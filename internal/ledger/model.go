package ledger

import "time"

// Kind classifica a movimentação de saldo
type Kind string

const (
	KindDeposit   Kind = "deposit"
	KindWithdraw  Kind = "withdraw"
	KindBetPlace  Kind = "bet_place"
	KindBetWin    Kind = "bet_win"
	KindBetRefund Kind = "bet_refund"
	KindAdjust    Kind = "adjust"
	KindShopBuy   Kind = "shop_buy"
	KindLootbox   Kind = "lootbox"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindBetPlace, KindBetWin, KindBetRefund,
		KindAdjust, KindShopBuy, KindLootbox:
		return true
	}
	return false
}

// Entry é um lançamento imutável do ledger.
// Amount positivo = crédito, negativo = débito.
type Entry struct {
	ID        string
	WalletID  string
	Kind      Kind
	Amount    int64
	Reference string // chave de idempotência; vazia = sem deduplicação
	Note      string
	CreatedAt time.Time
}

// BetReference é a chave usada por todas as movimentações ligadas a uma aposta
func BetReference(betID string) string { return "bet:" + betID }
