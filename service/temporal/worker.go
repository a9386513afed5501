package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/solwatch/accountwatch/service/metrics"
)

// WorkerConfig configures the reconciliation worker.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	Sink          SinkSignatureSource
	Upstream      UpstreamSignatureSource
	TargetAccount string
	Metrics       *metrics.Metrics // optional; nil means gap counts are logged only
	Logger        *slog.Logger
}

// Worker wraps a Temporal worker running ReconcileWorkflow and its activities.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures the reconciliation worker.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:    5,
		MaxConcurrentWorkflowTaskExecutionSize: 5,
	})

	w.RegisterWorkflow(ReconcileWorkflow)
	logger.Info("registered workflow", "name", "ReconcileWorkflow")

	activities := NewActivities(config.Sink, config.Upstream, config.TargetAccount, config.Metrics, logger)
	w.RegisterActivity(activities.FetchSinkSignatures)
	w.RegisterActivity(activities.FetchUpstreamSignatures)
	w.RegisterActivity(activities.RecordGap)

	logger.Info("registered activities",
		"activities", []string{"FetchSinkSignatures", "FetchUpstreamSignatures", "RecordGap"},
	)

	return &Worker{client: c, worker: w, logger: logger}, nil
}

// Start begins processing workflows and activities. Blocks until Stop is
// called or an error occurs.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Run(worker.InterruptCh()); err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
