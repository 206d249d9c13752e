package query

// Amounts in query responses are base-10 integer strings: balances can
// exceed int64 range and JSON numbers lose precision past 2^53.

// BalanceEntry is one account/currency balance for API queries.
type BalanceEntry struct {
	Account      string `json:"account"`
	Currency     string `json:"currency"`
	Balance      string `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PositionResponse is a collateralized position for API queries.
type PositionResponse struct {
	Account      string `json:"account"`
	Currency     string `json:"currency"`
	Reserve      string `json:"reserve"`
	Standard     string `json:"standard"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PositionTotals aggregates open positions per currency.
type PositionTotals struct {
	Currency      string `json:"currency"`
	TotalReserve  string `json:"total_reserve"`
	TotalStandard string `json:"total_standard"`
	OpenPositions int64  `json:"open_positions"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// PoolsResponse is the treasury pool state.
type PoolsResponse struct {
	StandardPool     string            `json:"standard_pool"`
	SurplusPool      string            `json:"surplus_pool"`
	ExpectedLotSizes map[string]string `json:"expected_lot_sizes"`
	AsOfSequence     int64             `json:"as_of_sequence"`
}

// SerpOpResponse is one elasticity or offset movement.
type SerpOpResponse struct {
	Sequence     int64  `json:"sequence"`
	Currency     string `json:"currency"`
	Op           string `json:"op"`
	Amount       string `json:"amount"`
	Timestamp    int64  `json:"timestamp"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry is a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy            bool                 `json:"is_healthy"`
	HashChainBreaks      []int64              `json:"hash_chain_breaks,omitempty"`
	UnbalancedCurrencies []UnbalancedCurrency `json:"unbalanced_currencies,omitempty"`
}

// UnbalancedCurrency is a currency whose journal entries do not net to
// zero across all accounts.
type UnbalancedCurrency struct {
	Currency  string `json:"currency"`
	Imbalance string `json:"imbalance"`
}
