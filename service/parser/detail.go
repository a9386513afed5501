package parser

// Detail is the upstream-encoded transaction envelope the Enrichment
// Client decodes and the Parser consumes. Field shapes mirror the
// pre/post balance arrays a Solana "confirmed" transaction response
// carries, trimmed to what the Parser actually reads.
type Detail struct {
	Signatures []string `json:"signatures"`
	Slot       uint64   `json:"slot"`
	BlockTime  *int64   `json:"blockTime"`

	Meta DetailMeta `json:"meta"`

	// AccountKeys is positional: index i is the account referenced by
	// PreBalances[i]/PostBalances[i].
	AccountKeys []string `json:"accountKeys"`
}

// DetailMeta carries the fee, success/error, balances and compute units
// reported for one transaction.
type DetailMeta struct {
	Err                 map[string]any      `json:"err"`
	Fee                 uint64              `json:"fee"`
	PreBalances         []int64             `json:"preBalances"`
	PostBalances        []int64             `json:"postBalances"`
	PreTokenBalances    []TokenBalanceEntry `json:"preTokenBalances"`
	PostTokenBalances   []TokenBalanceEntry `json:"postTokenBalances"`
	ComputeUnitsConsumed *uint64            `json:"computeUnitsConsumed"`
}

// TokenBalanceEntry is one SPL token balance snapshot, tagged by the
// position of the owning account in AccountKeys.
type TokenBalanceEntry struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Amount       string `json:"amount"` // decimal string, smallest token unit
}
