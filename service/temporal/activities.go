package temporal

import (
	"context"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/solwatch/accountwatch/service/metrics"
	"github.com/solwatch/accountwatch/service/solana"
)

// FetchSinkSignaturesInput bounds one sink-side signature query.
type FetchSinkSignaturesInput struct {
	Since time.Time `json:"since"`
}

// FetchSinkSignaturesResult is every signature the sink holds for the
// watched account within the queried window.
type FetchSinkSignaturesResult struct {
	Signatures []string `json:"signatures"`
}

// FetchUpstreamSignaturesInput bounds one secondary-source poll.
type FetchUpstreamSignaturesInput struct {
	Account string    `json:"account"`
	Since   time.Time `json:"since"`
}

// FetchUpstreamSignaturesResult is every signature the secondary source
// reports for the watched account within the polled window.
type FetchUpstreamSignaturesResult struct {
	Signatures []string `json:"signatures"`
}

// RecordGapInput reports the result of one diff pass to the metrics layer.
type RecordGapInput struct {
	GapCount int `json:"gap_count"`
}

// SinkSignatureSource is the subset of the Sink the reconciliation
// activities need: the set of signatures already committed.
type SinkSignatureSource interface {
	SignaturesSince(ctx context.Context, since time.Time) ([]string, error)
}

// UpstreamSignatureSource is the secondary, independent read path
// reconciliation cross-checks the sink against.
type UpstreamSignatureSource interface {
	SignaturesSince(ctx context.Context, params solana.SignaturesSinceParams) ([]string, error)
}

// Activities holds the dependencies the reconciliation workflow's
// activities run against. All dependencies are explicit, following the
// ingestion loop's constructor-injection style.
type Activities struct {
	sink          SinkSignatureSource
	upstream      UpstreamSignatureSource
	targetAccount string
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewActivities wires the reconciliation activities. metrics may be nil,
// in which case gap counts are logged but not recorded.
func NewActivities(sink SinkSignatureSource, upstream UpstreamSignatureSource, targetAccount string, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		sink:          sink,
		upstream:      upstream,
		targetAccount: targetAccount,
		metrics:       m,
		logger:        logger,
	}
}

// FetchSinkSignatures returns the signatures the sink already holds for the
// watched account since the given time.
func (a *Activities) FetchSinkSignatures(ctx context.Context, input FetchSinkSignaturesInput) (*FetchSinkSignaturesResult, error) {
	sigs, err := a.sink.SignaturesSince(ctx, input.Since)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch sink signatures", "error", err)
		return nil, err
	}
	return &FetchSinkSignaturesResult{Signatures: sigs}, nil
}

// FetchUpstreamSignatures polls the secondary source for the signatures it
// has seen for the watched account since the given time.
func (a *Activities) FetchUpstreamSignatures(ctx context.Context, input FetchUpstreamSignaturesInput) (*FetchUpstreamSignaturesResult, error) {
	account, err := solanago.PublicKeyFromBase58(input.Account)
	if err != nil {
		return nil, err
	}

	sigs, err := a.upstream.SignaturesSince(ctx, solana.SignaturesSinceParams{
		Account: account,
		Since:   input.Since,
		Limit:   1000,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch upstream signatures", "error", err)
		return nil, err
	}
	return &FetchUpstreamSignaturesResult{Signatures: sigs}, nil
}

// RecordGap records the reconciliation gap count on the metrics gauge. It is
// its own activity, rather than a direct call from workflow code, because
// workflow code must stay deterministic and metrics collectors are not.
func (a *Activities) RecordGap(ctx context.Context, input RecordGapInput) error {
	a.logger.InfoContext(ctx, "reconciliation pass complete", "account", a.targetAccount, "gap_count", input.GapCount)
	if a.metrics != nil {
		a.metrics.SetReconciliationGap(input.GapCount)
	}
	return nil
}
