// Package domain holds the normalized value types the ingestion pipeline
// passes from the Parser to the Sink. Values are built once and never
// mutated after construction.
package domain

import "time"

// BalanceChange is the signed change an account experienced in one
// transaction for one asset. Mint is nil for the native asset.
type BalanceChange struct {
	AccountAddress string
	Mint           *string
	Pre            int64
	Post           int64
}

// Delta returns Post - Pre, the value the Sink stores denormalized.
func (b BalanceChange) Delta() int64 {
	return b.Post - b.Pre
}

// ParsedTransaction is the output of the Parser and the input to the Sink.
type ParsedTransaction struct {
	Signature      string
	Slot           uint64
	BlockTime      *time.Time
	Fee            uint64
	FeePayer       string
	Success        bool
	ComputeUnits   *uint64
	BalanceChanges []BalanceChange
}
