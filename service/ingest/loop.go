// Package ingest drives the Ingestion Loop: a state machine that holds a
// subscription to the Stream Client open, enriches and parses each inbound
// notification, and commits the result to the Sink.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/domain"
	"github.com/solwatch/accountwatch/service/metrics"
	"github.com/solwatch/accountwatch/service/parser"
	"github.com/solwatch/accountwatch/service/streamclient"
)

// State names the Ingestion Loop's position in its reconnect state machine.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateBackoff
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	default:
		return "terminal"
	}
}

const (
	baseBackoff = time.Second
	maxBackoff  = 300 * time.Second
)

// backoffDelay returns min(2^attempt * 1s, 300s).
func backoffDelay(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10 // 2^10 * 1s already exceeds maxBackoff
	}
	d := baseBackoff << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Stream is the subset of streamclient.Client the loop depends on.
type Stream interface {
	Connect(ctx context.Context) error
	Close() error
	Notifications(ctx context.Context) (<-chan streamclient.Notification, <-chan error)
}

// Enricher fetches transaction detail by signature.
type Enricher interface {
	FetchDetail(ctx context.Context, signature string) (*parser.Detail, error)
}

// Sink is the subset of sink.Sink the loop writes through.
type Sink interface {
	InsertCompleteTransaction(ctx context.Context, tx domain.ParsedTransaction) (id int64, inserted bool, err error)
	Ping(ctx context.Context) error
}

// Fanout publishes a committed transaction downstream. Optional: nil disables it.
type Fanout interface {
	Publish(ctx context.Context, tx domain.ParsedTransaction) error
}

// Loop owns one account's subscription lifecycle.
type Loop struct {
	stream        Stream
	enricher      Enricher
	sink          Sink
	fanout        Fanout
	metrics       *metrics.Metrics
	logger        *slog.Logger
	targetAccount string
	includeFailed bool
	maxRetries    int

	state      State
	startedAt  time.Time
	backoffEnteredAt time.Time
}

// New constructs a Loop. fanout may be nil.
func New(stream Stream, enricher Enricher, sink Sink, fanout Fanout, m *metrics.Metrics, logger *slog.Logger, targetAccount string, includeFailed bool) *Loop {
	return &Loop{
		stream:        stream,
		enricher:      enricher,
		sink:          sink,
		fanout:        fanout,
		metrics:       m,
		logger:        logger,
		targetAccount: targetAccount,
		includeFailed: includeFailed,
		maxRetries:    3,
		state:         StateConnecting,
		startedAt:     time.Now(),
	}
}

// Run blocks until ctx is cancelled, reconnecting with backoff across
// stream failures. It always returns nil on a clean ctx cancellation.
func (l *Loop) Run(ctx context.Context) error {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.setState(StateConnecting)
		if err := l.stream.Connect(ctx); err != nil {
			l.logger.Warn("stream connect failed", "attempt", attempt, "error", err)
			l.metrics.RecordError("StreamError")
			l.metrics.RecordStreamReconnection()
			if !l.sleepBackoff(ctx, attempt) {
				return nil
			}
			attempt++
			continue
		}

		l.logger.Info("stream connected", "target_account", l.targetAccount)
		attempt = 0
		l.setState(StateStreaming)
		l.metrics.SetStreamConnected(true)

		err := l.consume(ctx)
		l.stream.Close()
		l.metrics.SetStreamConnected(false)

		if ctx.Err() != nil {
			return nil
		}

		l.logger.Warn("stream ended, reconnecting", "error", err)
		l.metrics.RecordStreamReconnection()
		if !l.sleepBackoff(ctx, attempt) {
			return nil
		}
		attempt++
	}
}

func (l *Loop) sleepBackoff(ctx context.Context, attempt int) bool {
	l.setState(StateBackoff)
	delay := backoffDelay(attempt)
	l.logger.Info("backing off before reconnect", "attempt", attempt, "delay", delay)
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// consume reads notifications until the stream errors or ctx is cancelled.
func (l *Loop) consume(ctx context.Context) error {
	notifications, errc := l.stream.Notifications(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case n, ok := <-notifications:
			if !ok {
				return errors.New("notification channel closed")
			}
			l.processSignature(ctx, n.Signature)
		}
	}
}

// processSignature runs one signature through enrichment, parsing, and the
// sink. Any per-record error is logged and counted; the loop never stops
// because of it.
func (l *Loop) processSignature(ctx context.Context, signature string) {
	start := time.Now()
	defer func() {
		l.metrics.ObserveTransactionProcessingDuration(time.Since(start).Seconds())
	}()

	detail, err := l.fetchDetailWithRetry(ctx, signature)
	if err != nil {
		l.logger.Error("enrichment failed, dropping record", "signature", signature, "error", err)
		l.recordError(err)
		l.metrics.RecordTransactionFailed(l.targetAccount, "enrichment_error")
		return
	}

	tx, err := parser.Parse(detail)
	if err != nil {
		l.logger.Error("parse failed, dropping record", "signature", signature, "error", err)
		l.recordError(err)
		l.metrics.RecordTransactionFailed(l.targetAccount, "parse_error")
		return
	}

	if !tx.Success && !l.includeFailed {
		return
	}

	id, inserted, err := l.writeWithRetry(ctx, *tx)
	if err != nil {
		l.logger.Error("sink write failed, dropping record", "signature", signature, "error", err)
		l.recordError(err)
		l.metrics.RecordTransactionFailed(l.targetAccount, "sink_error")
		return
	}

	var blockTimeUnix int64
	if tx.BlockTime != nil {
		blockTimeUnix = tx.BlockTime.Unix()
	}
	l.metrics.RecordTransactionProcessed(l.targetAccount, blockTimeUnix)
	if inserted {
		l.metrics.RecordBalanceChanges(len(tx.BalanceChanges))
	}

	if inserted && l.fanout != nil {
		if err := l.fanout.Publish(ctx, *tx); err != nil {
			l.logger.Warn("fanout publish failed", "signature", signature, "error", err)
			l.metrics.RecordError("fanout")
		}
	}

	_ = id
}

func (l *Loop) fetchDetailWithRetry(ctx context.Context, signature string) (*parser.Detail, error) {
	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		detail, err := l.enricher.FetchDetail(ctx, signature)
		if err == nil {
			return detail, nil
		}
		lastErr = err

		var enrichErr *apperr.EnrichmentError
		if !errors.As(err, &enrichErr) || !enrichErr.Retriable {
			return nil, err
		}
		if attempt < l.maxRetries {
			time.Sleep(retryBackoff(attempt))
		}
	}
	return nil, lastErr
}

func (l *Loop) writeWithRetry(ctx context.Context, tx domain.ParsedTransaction) (int64, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		id, inserted, err := l.sink.InsertCompleteTransaction(ctx, tx)
		if err == nil {
			return id, inserted, nil
		}
		lastErr = err

		var transientErr *apperr.SinkTransientError
		if !errors.As(err, &transientErr) {
			return 0, false, err
		}
		if attempt < l.maxRetries {
			time.Sleep(retryBackoff(attempt))
		}
	}
	return 0, false, lastErr
}

func retryBackoff(attempt int) time.Duration {
	d := 100 * time.Millisecond << attempt
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

func (l *Loop) recordError(err error) {
	var (
		cfgErr      *apperr.ConfigError
		sinkTrans   *apperr.SinkTransientError
		sinkFatal   *apperr.SinkFatalError
		streamErr   *apperr.StreamError
		enrichErr   *apperr.EnrichmentError
		parseErr    *apperr.ParseError
	)
	switch {
	case errors.As(err, &cfgErr):
		l.metrics.RecordError("ConfigError")
	case errors.As(err, &sinkTrans):
		l.metrics.RecordError("SinkTransientError")
	case errors.As(err, &sinkFatal):
		l.metrics.RecordError("SinkFatalError")
	case errors.As(err, &streamErr):
		l.metrics.RecordError("StreamError")
	case errors.As(err, &enrichErr):
		l.metrics.RecordError("EnrichmentError")
	case errors.As(err, &parseErr):
		l.metrics.RecordError("ParseError")
	default:
		l.metrics.RecordError("unknown")
	}
}

func (l *Loop) setState(s State) {
	l.state = s
	if s == StateBackoff {
		l.backoffEnteredAt = time.Now()
	}
}

// State returns the loop's current state, for the health check.
func (l *Loop) State() State { return l.state }

// Uptime returns time elapsed since Run started.
func (l *Loop) Uptime() time.Duration { return time.Since(l.startedAt) }

// StreamStale reports whether the loop has sat in Backoff for longer than
// threshold, used by the /health endpoint.
func (l *Loop) StreamStale(threshold time.Duration) bool {
	if l.state != StateBackoff {
		return false
	}
	return time.Since(l.backoffEnteredAt) > threshold
}

// PingSink satisfies metrics.HealthChecker by delegating to the Sink.
func (l *Loop) PingSink(ctx context.Context) error {
	return l.sink.Ping(ctx)
}
