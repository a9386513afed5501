package nats

import (
	"time"

	"github.com/solwatch/accountwatch/service/domain"
)

// BalanceChangeEvent mirrors domain.BalanceChange for the wire event.
type BalanceChangeEvent struct {
	AccountAddress string  `json:"account_address"`
	Mint           *string `json:"mint,omitempty"`
	PreBalance     int64   `json:"pre_balance"`
	PostBalance    int64   `json:"post_balance"`
	Delta          int64   `json:"delta"`
}

// TransactionEvent is published to subject "txns.{account}" once a
// transaction has been committed to the sink.
type TransactionEvent struct {
	Signature      string               `json:"signature"`
	Slot           uint64               `json:"slot"`
	BlockTime      *time.Time           `json:"block_time,omitempty"`
	Fee            uint64               `json:"fee"`
	FeePayer       string               `json:"fee_payer"`
	Success        bool                 `json:"success"`
	BalanceChanges []BalanceChangeEvent `json:"balance_changes"`
	PublishedAt    time.Time            `json:"published_at"`
}

// FromParsedTransaction converts a committed domain.ParsedTransaction into
// the event shape published to JetStream.
func FromParsedTransaction(tx domain.ParsedTransaction, publishedAt time.Time) *TransactionEvent {
	event := &TransactionEvent{
		Signature:   tx.Signature,
		Slot:        tx.Slot,
		BlockTime:   tx.BlockTime,
		Fee:         tx.Fee,
		FeePayer:    tx.FeePayer,
		Success:     tx.Success,
		PublishedAt: publishedAt,
	}
	for _, c := range tx.BalanceChanges {
		event.BalanceChanges = append(event.BalanceChanges, BalanceChangeEvent{
			AccountAddress: c.AccountAddress,
			Mint:           c.Mint,
			PreBalance:     c.Pre,
			PostBalance:    c.Post,
			Delta:          c.Delta(),
		})
	}
	return event
}
