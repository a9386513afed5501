// Package sink persists parsed transactions to Postgres. Every write the
// ingestion loop makes goes through InsertCompleteTransaction, which
// commits the transaction row and its balance changes atomically.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/domain"
	"github.com/solwatch/accountwatch/service/metrics"
)

// Sink wraps a pgxpool.Pool and exposes the ingestion pipeline's writes.
// metrics is optional; nil skips database_operation_seconds observations
// (the operator CLI constructs a Sink with no metrics to record to).
type Sink struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// New wraps an already-connected pool. Callers should have run Migrate
// first. m may be nil.
func New(pool *pgxpool.Pool, m *metrics.Metrics) *Sink {
	return &Sink{pool: pool, metrics: m}
}

// observe records operation's duration against database_operation_seconds
// when a Metrics instance is configured.
func (s *Sink) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDatabaseOperation(operation, time.Since(start).Seconds())
	}
}

// classifySinkError maps a write-path failure to the apperr taxonomy by
// Postgres SQLState class: connection-exception (class 08) is transient and
// worth retrying; integrity-constraint violations (class 23) and schema
// errors (class 42, e.g. 42P01 undefined table from a missing migration) are
// fatal, since retrying them just repeats the same failure. Anything else
// defaults to transient, matching the conservative "retry unless we know
// better" posture the loop expects.
func classifySinkError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return &apperr.SinkFatalError{Op: op, Cause: err}
		case strings.HasPrefix(pgErr.Code, "42"):
			return &apperr.SinkFatalError{Op: op, Cause: err}
		case strings.HasPrefix(pgErr.Code, "08"):
			return &apperr.SinkTransientError{Op: op, Cause: err}
		}
	}
	return &apperr.SinkTransientError{Op: op, Cause: err}
}

// Ping round-trips a no-op query, used by the health check.
func (s *Sink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertTransaction inserts one transactions row under ON CONFLICT (signature)
// DO NOTHING. inserted is false when the signature already existed — the
// idempotency anchor of the whole pipeline.
func (s *Sink) InsertTransaction(ctx context.Context, tx domain.ParsedTransaction) (id int64, inserted bool, err error) {
	return s.insertTransactionTx(ctx, s.pool, tx)
}

func (s *Sink) insertTransactionTx(ctx context.Context, q queryer, tx domain.ParsedTransaction) (int64, bool, error) {
	defer s.observe("InsertTransaction", time.Now())

	var blockTime *time.Time
	if tx.BlockTime != nil {
		blockTime = tx.BlockTime
	}

	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (signature, slot, block_time, fee, fee_payer, success, compute_units_consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signature) DO NOTHING
		RETURNING id
	`, tx.Signature, int64(tx.Slot), blockTime, int64(tx.Fee), tx.FeePayer, tx.Success, tx.ComputeUnits).Scan(&id)

	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classifySinkError("InsertTransaction", err)
	}
	return id, true, nil
}

// insertBalanceChangesTx queues one single-row INSERT per change in a
// pgx.Batch and sends it in one round trip inside the caller's transaction
// scope. Called only from InsertCompleteTransaction.
func (s *Sink) insertBalanceChangesTx(ctx context.Context, q queryer, txID int64, changes []domain.BalanceChange) error {
	if len(changes) == 0 {
		return nil
	}
	defer s.observe("InsertBalanceChanges", time.Now())

	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(`
			INSERT INTO account_balance_changes
				(transaction_id, account_address, mint_address, pre_balance, post_balance, balance_delta)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, txID, c.AccountAddress, c.Mint, c.Pre, c.Post, c.Delta())
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for range changes {
		if _, err := br.Exec(); err != nil {
			return classifySinkError("InsertBalanceChanges", err)
		}
	}
	return nil
}

// InsertCompleteTransaction writes the transaction row and its balance
// changes as one atomic unit: either both commit or neither does. When the
// signature is a duplicate, the transaction row already exists, and no new
// balance changes are written (they were written the first time).
func (s *Sink) InsertCompleteTransaction(ctx context.Context, tx domain.ParsedTransaction) (id int64, inserted bool, err error) {
	defer s.observe("InsertCompleteTransaction", time.Now())

	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, classifySinkError("Begin", err)
	}
	defer dbTx.Rollback(ctx)

	id, inserted, err = s.insertTransactionTx(ctx, dbTx, tx)
	if err != nil {
		return 0, false, err
	}
	if !inserted {
		return 0, false, nil
	}

	if err := s.insertBalanceChangesTx(ctx, dbTx, id, tx.BalanceChanges); err != nil {
		return 0, false, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, false, classifySinkError("Commit", err)
	}
	return id, true, nil
}

// GetTransaction fetches one transaction row by signature, for the operator CLI.
func (s *Sink) GetTransaction(ctx context.Context, signature string) (*domain.ParsedTransaction, error) {
	var tx domain.ParsedTransaction
	var slot int64
	var fee int64
	var computeUnits *int64

	err := s.pool.QueryRow(ctx, `
		SELECT signature, slot, block_time, fee, fee_payer, success, compute_units_consumed
		FROM transactions
		WHERE signature = $1
	`, signature).Scan(&tx.Signature, &slot, &tx.BlockTime, &fee, &tx.FeePayer, &tx.Success, &computeUnits)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("transaction %s not found", signature)
		}
		return nil, &apperr.SinkFatalError{Op: "GetTransaction", Cause: err}
	}
	tx.Slot = uint64(slot)
	tx.Fee = uint64(fee)
	if computeUnits != nil {
		u := uint64(*computeUnits)
		tx.ComputeUnits = &u
	}

	rows, err := s.pool.Query(ctx, `
		SELECT account_address, mint_address, pre_balance, post_balance
		FROM account_balance_changes
		WHERE transaction_id = (SELECT id FROM transactions WHERE signature = $1)
		ORDER BY id
	`, signature)
	if err != nil {
		return nil, &apperr.SinkFatalError{Op: "GetTransaction", Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.BalanceChange
		if err := rows.Scan(&c.AccountAddress, &c.Mint, &c.Pre, &c.Post); err != nil {
			return nil, &apperr.SinkFatalError{Op: "GetTransaction", Cause: err}
		}
		tx.BalanceChanges = append(tx.BalanceChanges, c)
	}

	return &tx, nil
}

// ListTransactions returns the most recent transactions, newest first.
func (s *Sink) ListTransactions(ctx context.Context, limit int) ([]domain.ParsedTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signature, slot, block_time, fee, fee_payer, success, compute_units_consumed
		FROM transactions
		ORDER BY ingested_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, &apperr.SinkFatalError{Op: "ListTransactions", Cause: err}
	}
	defer rows.Close()

	var result []domain.ParsedTransaction
	for rows.Next() {
		var tx domain.ParsedTransaction
		var slot int64
		var fee int64
		var computeUnits *int64
		if err := rows.Scan(&tx.Signature, &slot, &tx.BlockTime, &fee, &tx.FeePayer, &tx.Success, &computeUnits); err != nil {
			return nil, &apperr.SinkFatalError{Op: "ListTransactions", Cause: err}
		}
		tx.Slot = uint64(slot)
		tx.Fee = uint64(fee)
		if computeUnits != nil {
			u := uint64(*computeUnits)
			tx.ComputeUnits = &u
		}
		result = append(result, tx)
	}
	return result, nil
}

// SignaturesSince returns every signature ingested at or after the given
// time, for the Reconciliation Workflow's diffing step. A zero time returns
// every signature in the sink.
func (s *Sink) SignaturesSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signature FROM transactions WHERE ingested_at >= $1
	`, since)
	if err != nil {
		return nil, &apperr.SinkFatalError{Op: "SignaturesSince", Cause: err}
	}
	defer rows.Close()

	var sigs []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, &apperr.SinkFatalError{Op: "SignaturesSince", Cause: err}
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// insertTransactionTx/insertBalanceChangesTx run standalone or inside a
// caller-managed transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
