package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/domain"
)

func strPtr(s string) *string { return &s }

func TestInsertCompleteTransaction_FirstInsert(t *testing.T) {
	SkipIfNoTestDB(t)

	ts := NewTestSink(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	blockTime := time.Unix(1700000000, 0).UTC()

	tx := domain.ParsedTransaction{
		Signature: "AAA...001",
		Slot:      100,
		BlockTime: &blockTime,
		Fee:       5000,
		FeePayer:  "F...fee",
		Success:   true,
		BalanceChanges: []domain.BalanceChange{
			{AccountAddress: "F...fee", Mint: nil, Pre: 1000000, Post: 994500},
		},
	}

	id, inserted, err := ts.InsertCompleteTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Greater(t, id, int64(0))

	got, err := ts.GetTransaction(ctx, "AAA...001")
	require.NoError(t, err)
	assert.Equal(t, tx.Signature, got.Signature)
	assert.Equal(t, tx.Slot, got.Slot)
	require.Len(t, got.BalanceChanges, 1)
	assert.Equal(t, int64(-5500), got.BalanceChanges[0].Delta())
}

func TestInsertCompleteTransaction_DuplicateIsIdempotent(t *testing.T) {
	SkipIfNoTestDB(t)

	ts := NewTestSink(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	tx := domain.ParsedTransaction{
		Signature: "BBB...001",
		Slot:      101,
		Fee:       1000,
		FeePayer:  "F...fee",
		Success:   true,
	}

	_, inserted1, err := ts.InsertCompleteTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted1)

	_, inserted2, err := ts.InsertCompleteTransaction(ctx, tx)
	require.NoError(t, err)
	assert.False(t, inserted2)

	all, err := ts.ListTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInsertCompleteTransaction_WithTokenChange(t *testing.T) {
	SkipIfNoTestDB(t)

	ts := NewTestSink(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	tx := domain.ParsedTransaction{
		Signature: "CCC...001",
		Slot:      102,
		Fee:       5000,
		FeePayer:  "F...fee",
		Success:   true,
		BalanceChanges: []domain.BalanceChange{
			{AccountAddress: "X...other", Mint: strPtr("M...usdc"), Pre: 1000000, Post: 2000000},
		},
	}

	_, inserted, err := ts.InsertCompleteTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := ts.GetTransaction(ctx, "CCC...001")
	require.NoError(t, err)
	require.Len(t, got.BalanceChanges, 1)
	require.NotNil(t, got.BalanceChanges[0].Mint)
	assert.Equal(t, "M...usdc", *got.BalanceChanges[0].Mint)
}

func TestInsertCompleteTransaction_NoBalanceChanges(t *testing.T) {
	SkipIfNoTestDB(t)

	ts := NewTestSink(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	tx := domain.ParsedTransaction{
		Signature: "DDD...001",
		Slot:      103,
		Fee:       5000,
		FeePayer:  "F...fee",
		Success:   true,
	}

	id, inserted, err := ts.InsertCompleteTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Greater(t, id, int64(0))

	got, err := ts.GetTransaction(ctx, "DDD...001")
	require.NoError(t, err)
	assert.Empty(t, got.BalanceChanges)
}

func TestSignaturesSince(t *testing.T) {
	SkipIfNoTestDB(t)

	ts := NewTestSink(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	for _, sig := range []string{"EEE...001", "EEE...002"} {
		_, _, err := ts.InsertCompleteTransaction(ctx, domain.ParsedTransaction{
			Signature: sig,
			Slot:      1,
			Fee:       1,
			FeePayer:  "F",
			Success:   true,
		})
		require.NoError(t, err)
	}

	sigs, err := ts.SignaturesSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	assert.Contains(t, sigs, "EEE...001")

	none, err := ts.SignaturesSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClassifySinkError(t *testing.T) {
	var fatal *apperr.SinkFatalError
	var transient *apperr.SinkTransientError

	err := classifySinkError("InsertTransaction", &pgconn.PgError{Code: "23505"})
	require.True(t, errors.As(err, &fatal))

	err = classifySinkError("InsertTransaction", &pgconn.PgError{Code: "42P01"})
	require.True(t, errors.As(err, &fatal))

	err = classifySinkError("InsertTransaction", &pgconn.PgError{Code: "08006"})
	require.True(t, errors.As(err, &transient))

	err = classifySinkError("InsertTransaction", errors.New("context deadline exceeded"))
	require.True(t, errors.As(err, &transient))
}

func TestGetTransaction_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	ts := NewTestSink(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	_, err := ts.GetTransaction(context.Background(), "does-not-exist")
	require.Error(t, err)
}
