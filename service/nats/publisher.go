// Package nats implements the optional Event Fanout: once a transaction
// commits to the sink, its summary is published to JetStream for
// downstream consumers. Disabled entirely when NATS_URL is unset.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/solwatch/accountwatch/service/domain"
)

// Publisher publishes a committed transaction downstream.
type Publisher interface {
	Publish(ctx context.Context, tx domain.ParsedTransaction) error
	Close() error
}

// JetStreamPublisher publishes TransactionEvents to a per-account JetStream
// stream subject.
type JetStreamPublisher struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	logger        *slog.Logger
	targetAccount string
}

const (
	// StreamName is the JetStream stream holding every published transaction.
	StreamName = "ACCOUNTWATCH_TRANSACTIONS"

	// StreamSubjects is the subject pattern the stream captures.
	StreamSubjects = "txns.*"

	// StreamRetention bounds how long messages are kept.
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher connects to NATS, ensures the stream exists, and returns a
// Publisher scoped to targetAccount.
func NewPublisher(natsURL, targetAccount string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("accountwatch-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:            nc,
		js:            js,
		logger:        logger,
		targetAccount: targetAccount,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized", "url", natsURL, "stream", StreamName)
	return publisher, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed transactions for the watched account",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish publishes one committed transaction to "txns.{targetAccount}".
func (p *JetStreamPublisher) Publish(ctx context.Context, tx domain.ParsedTransaction) error {
	event := FromParsedTransaction(tx, time.Now().UTC())

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	subject := fmt.Sprintf("txns.%s", p.targetAccount)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish transaction: %w", err)
	}

	p.logger.Debug("published transaction event", "subject", subject, "signature", event.Signature)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
