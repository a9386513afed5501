package temporal

import (
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ReconcileWindow is how far back each reconciliation pass looks.
const ReconcileWindow = 24 * time.Hour

// ReconcileInput parameterizes one ReconcileWorkflow run.
type ReconcileInput struct {
	Account string `json:"account"`
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	SinkSignatureCount     int      `json:"sink_signature_count"`
	UpstreamSignatureCount int      `json:"upstream_signature_count"`
	MissingSignatures      []string `json:"missing_signatures"`
}

// ReconcileWorkflow cross-checks the sink's recent signatures against the
// secondary upstream source for the same account and reports, but never
// repairs, any gap. It runs on a Temporal Schedule at RECONCILE_INTERVAL.
func ReconcileWorkflow(ctx workflow.Context, input ReconcileInput) (*ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ReconcileWorkflow started", "account", input.Account)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	since := workflow.Now(ctx).Add(-ReconcileWindow)

	var sinkResult *FetchSinkSignaturesResult
	err := workflow.ExecuteActivity(ctx, a.FetchSinkSignatures, FetchSinkSignaturesInput{Since: since}).Get(ctx, &sinkResult)
	if err != nil {
		logger.Error("failed to fetch sink signatures", "error", err)
		return nil, err
	}

	var upstreamResult *FetchUpstreamSignaturesResult
	err = workflow.ExecuteActivity(ctx, a.FetchUpstreamSignatures, FetchUpstreamSignaturesInput{Account: input.Account, Since: since}).Get(ctx, &upstreamResult)
	if err != nil {
		logger.Error("failed to fetch upstream signatures", "error", err)
		return nil, err
	}

	inSink := make(map[string]struct{}, len(sinkResult.Signatures))
	for _, sig := range sinkResult.Signatures {
		inSink[sig] = struct{}{}
	}

	var missing []string
	for _, sig := range upstreamResult.Signatures {
		if _, ok := inSink[sig]; !ok {
			missing = append(missing, sig)
		}
	}

	if err := workflow.ExecuteActivity(ctx, a.RecordGap, RecordGapInput{GapCount: len(missing)}).Get(ctx, nil); err != nil {
		logger.Error("failed to record reconciliation gap", "error", err)
		return nil, err
	}

	logger.Info("ReconcileWorkflow completed",
		"account", input.Account,
		"sink_count", len(sinkResult.Signatures),
		"upstream_count", len(upstreamResult.Signatures),
		"gap_count", len(missing),
	)

	return &ReconcileResult{
		SinkSignatureCount:     len(sinkResult.Signatures),
		UpstreamSignatureCount: len(upstreamResult.Signatures),
		MissingSignatures:      missing,
	}, nil
}
