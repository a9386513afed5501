// Package parser turns the upstream-encoded transaction detail envelope
// into the normalized domain.ParsedTransaction, by diffing pre/post
// balances rather than decoding instructions.
package parser

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/domain"
)

// Parse is deterministic: the same Detail always produces a
// byte-identical ParsedTransaction.
func Parse(d *Detail) (*domain.ParsedTransaction, error) {
	if len(d.Signatures) == 0 {
		return nil, &apperr.ParseError{Cause: fmt.Errorf("transaction has no signature")}
	}
	signature := d.Signatures[0]

	if len(d.AccountKeys) == 0 {
		return nil, &apperr.ParseError{Signature: signature, Cause: fmt.Errorf("no account keys in transaction")}
	}
	if len(d.Meta.PreBalances) != len(d.Meta.PostBalances) {
		return nil, &apperr.ParseError{Signature: signature, Cause: fmt.Errorf(
			"pre/post native balance arrays differ in length: %d vs %d",
			len(d.Meta.PreBalances), len(d.Meta.PostBalances))}
	}

	feePayer := d.AccountKeys[0]
	success := d.Meta.Err == nil

	var blockTime *time.Time
	if d.BlockTime != nil {
		t := time.Unix(*d.BlockTime, 0).UTC()
		blockTime = &t
	}

	changes := nativeBalanceChanges(d)
	changes = append(changes, tokenBalanceChanges(d)...)

	return &domain.ParsedTransaction{
		Signature:      signature,
		Slot:           d.Slot,
		BlockTime:      blockTime,
		Fee:            d.Meta.Fee,
		FeePayer:       feePayer,
		Success:        success,
		ComputeUnits:   d.Meta.ComputeUnitsConsumed,
		BalanceChanges: changes,
	}, nil
}

func nativeBalanceChanges(d *Detail) []domain.BalanceChange {
	var changes []domain.BalanceChange
	for i := range d.Meta.PreBalances {
		pre := d.Meta.PreBalances[i]
		post := d.Meta.PostBalances[i]
		if pre == post {
			continue
		}
		account := accountAt(d.AccountKeys, i)
		changes = append(changes, domain.BalanceChange{
			AccountAddress: account,
			Mint:           nil,
			Pre:            pre,
			Post:           post,
		})
	}
	return changes
}

type tokenKey struct {
	accountIndex int
	mint         string
}

func tokenBalanceChanges(d *Detail) []domain.BalanceChange {
	pre := make(map[tokenKey]int64)
	post := make(map[tokenKey]int64)

	for _, entry := range d.Meta.PreTokenBalances {
		pre[tokenKey{entry.AccountIndex, entry.Mint}] = parseTokenAmount(entry.Amount)
	}
	for _, entry := range d.Meta.PostTokenBalances {
		post[tokenKey{entry.AccountIndex, entry.Mint}] = parseTokenAmount(entry.Amount)
	}

	seen := make(map[tokenKey]bool, len(pre)+len(post))
	for key := range pre {
		seen[key] = true
	}
	for key := range post {
		seen[key] = true
	}
	keys := make([]tokenKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].accountIndex != keys[j].accountIndex {
			return keys[i].accountIndex < keys[j].accountIndex
		}
		return keys[i].mint < keys[j].mint
	})

	var changes []domain.BalanceChange
	for _, key := range keys {
		preAmount := pre[key] // zero value if absent
		postAmount := post[key]
		if preAmount == postAmount {
			continue
		}
		mint := key.mint
		changes = append(changes, domain.BalanceChange{
			AccountAddress: accountAt(d.AccountKeys, key.accountIndex),
			Mint:           &mint,
			Pre:            preAmount,
			Post:           postAmount,
		})
	}
	return changes
}

func parseTokenAmount(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func accountAt(keys []string, index int) string {
	if index < 0 || index >= len(keys) {
		return fmt.Sprintf("unknown_%d", index)
	}
	return keys[index]
}
