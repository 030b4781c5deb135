package market

import "time"

// TradeRecord is the immutable record of one executed match. The price
// always satisfies sell.price <= Price <= buy.price at execution time.
type TradeRecord struct {
	ID             string
	BuyOrderID     string
	SellOrderID    string
	Buyer          string
	Seller         string
	Amount         uint64
	Price          uint64
	TotalValue     uint64
	Fee            uint64
	WheelingCharge uint64
	ExecutedAt     time.Time
}

// NewTradeRecord builds the record for an executed match.
func NewTradeRecord(id string, buy, sell *Order, amount, price, fee, wheelingCharge uint64, executedAt time.Time) TradeRecord {
	return TradeRecord{
		ID:             id,
		BuyOrderID:     buy.ID(),
		SellOrderID:    sell.ID(),
		Buyer:          buy.Owner(),
		Seller:         sell.Owner(),
		Amount:         amount,
		Price:          price,
		TotalValue:     amount * price,
		Fee:            fee,
		WheelingCharge: wheelingCharge,
		ExecutedAt:     executedAt.UTC(),
	}
}
