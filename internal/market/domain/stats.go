package market

// MarketStats is the running order book tally. A single row backs it.
type MarketStats struct {
	totalOrders       uint64
	totalTrades       uint64
	totalVolumeWh     uint64
	totalFees         uint64
	lastClearingPrice uint64

	version int
	isNew   bool
}

// NewMarketStats creates zeroed stats.
func NewMarketStats() *MarketStats {
	return &MarketStats{isNew: true}
}

// RestoreMarketStats rebuilds persisted stats.
func RestoreMarketStats(totalOrders, totalTrades, totalVolumeWh, totalFees, lastClearingPrice uint64, version int) *MarketStats {
	return &MarketStats{
		totalOrders:       totalOrders,
		totalTrades:       totalTrades,
		totalVolumeWh:     totalVolumeWh,
		totalFees:         totalFees,
		lastClearingPrice: lastClearingPrice,
		version:           version,
	}
}

// RecordOrder counts a new order.
func (s *MarketStats) RecordOrder() { s.totalOrders++ }

// RecordTrade counts an executed match.
func (s *MarketStats) RecordTrade(amount, price, fee uint64) {
	s.totalTrades++
	s.totalVolumeWh += amount
	s.totalFees += fee
	s.lastClearingPrice = price
}

func (s *MarketStats) TotalOrders() uint64       { return s.totalOrders }
func (s *MarketStats) TotalTrades() uint64       { return s.totalTrades }
func (s *MarketStats) TotalVolumeWh() uint64     { return s.totalVolumeWh }
func (s *MarketStats) TotalFees() uint64         { return s.totalFees }
func (s *MarketStats) LastClearingPrice() uint64 { return s.lastClearingPrice }

// Version returns the optimistic concurrency version.
func (s *MarketStats) Version() int { return s.version }

// IsNew reports whether the stats row was freshly created.
func (s *MarketStats) IsNew() bool { return s.isNew }

// MarkPersisted marks the stats as persisted and bumps the version.
func (s *MarketStats) MarkPersisted() {
	if s != nil {
		s.isNew = false
		s.version++
	}
}

// Clone returns a detached copy.
func (s *MarketStats) Clone() *MarketStats {
	if s == nil {
		return nil
	}
	copy := *s
	return &copy
}
