package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client talks to Temporal to manage the reconciliation schedule.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient connects to Temporal.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal", "host", host, "namespace", namespace, "task_queue", taskQueue)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")
	return &Client{client: c, taskQueue: taskQueue, logger: logger}, nil
}

// EnsureReconcileSchedule creates the reconciliation schedule if it does not
// already exist, or updates its interval if it does.
func (c *Client) EnsureReconcileSchedule(ctx context.Context, account string, interval time.Duration) error {
	id := reconcileScheduleID(account)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err == nil {
		return handle.Update(ctx, client.ScheduleUpdateOptions{
			DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
				input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
				return &client.ScheduleUpdate{Schedule: &input.Description.Schedule}, nil
			},
		})
	}

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "reconcile-" + account,
			Workflow:  "ReconcileWorkflow",
			TaskQueue: c.taskQueue,
			Args:      []interface{}{ReconcileInput{Account: account}},
		},
		Memo: map[string]interface{}{
			"account": account,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create reconcile schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule created", "account", account, "schedule_id", id, "interval", interval)
	return nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func reconcileScheduleID(account string) string {
	return "reconcile-" + account
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) { l.logger.Debug(msg, keyvals...) }
func (l *temporalLogger) Info(msg string, keyvals ...interface{})  { l.logger.Info(msg, keyvals...) }
func (l *temporalLogger) Warn(msg string, keyvals ...interface{})  { l.logger.Warn(msg, keyvals...) }
func (l *temporalLogger) Error(msg string, keyvals ...interface{}) { l.logger.Error(msg, keyvals...) }
