package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/domain"
	"github.com/solwatch/accountwatch/service/metrics"
	"github.com/solwatch/accountwatch/service/parser"
	"github.com/solwatch/accountwatch/service/streamclient"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct {
	mu             sync.Mutex
	connectErr     error
	connectCalls   int
	notifications  []streamclient.Notification
	streamErr      error
	closed         bool
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) Notifications(ctx context.Context) (<-chan streamclient.Notification, <-chan error) {
	out := make(chan streamclient.Notification, len(f.notifications))
	errc := make(chan error, 1)
	for _, n := range f.notifications {
		out <- n
	}
	go func() {
		if f.streamErr != nil {
			errc <- f.streamErr
		}
	}()
	return out, errc
}

type fakeEnricher struct {
	detail *parser.Detail
	err    error
}

func (f *fakeEnricher) FetchDetail(ctx context.Context, signature string) (*parser.Detail, error) {
	return f.detail, f.err
}

type fakeSink struct {
	mu       sync.Mutex
	inserted []domain.ParsedTransaction
	err      error
	pingErr  error
}

func (f *fakeSink) InsertCompleteTransaction(ctx context.Context, tx domain.ParsedTransaction) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	f.inserted = append(f.inserted, tx)
	return int64(len(f.inserted)), true, nil
}

func (f *fakeSink) Ping(ctx context.Context) error { return f.pingErr }

type fakeFanout struct {
	published []domain.ParsedTransaction
}

func (f *fakeFanout) Publish(ctx context.Context, tx domain.ParsedTransaction) error {
	f.published = append(f.published, tx)
	return nil
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(0))
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 4*time.Second, backoffDelay(2))
	assert.Equal(t, maxBackoff, backoffDelay(20))
}

func TestProcessSignature_HappyPath(t *testing.T) {
	detail := &parser.Detail{
		Signatures:  []string{"AAA...001"},
		AccountKeys: []string{"F...fee"},
		Meta: parser.DetailMeta{
			Fee:          5000,
			PreBalances:  []int64{1000},
			PostBalances: []int64{500},
		},
	}
	sink := &fakeSink{}
	fanout := &fakeFanout{}
	l := New(&fakeStream{}, &fakeEnricher{detail: detail}, sink, fanout, metrics.New(), discardLogger(), "F...fee", false)

	l.processSignature(context.Background(), "AAA...001")

	require.Len(t, sink.inserted, 1)
	assert.Equal(t, "AAA...001", sink.inserted[0].Signature)
	require.Len(t, fanout.published, 1)
}

func TestProcessSignature_FailedTransactionDroppedWhenIncludeFailedIsFalse(t *testing.T) {
	detail := &parser.Detail{
		Signatures:  []string{"AAA...001"},
		AccountKeys: []string{"F...fee"},
		Meta: parser.DetailMeta{
			Err:          map[string]any{"InstructionError": []any{}},
			PreBalances:  []int64{1000},
			PostBalances: []int64{500},
		},
	}
	sink := &fakeSink{}
	l := New(&fakeStream{}, &fakeEnricher{detail: detail}, sink, nil, metrics.New(), discardLogger(), "F...fee", false)

	l.processSignature(context.Background(), "AAA...001")

	assert.Empty(t, sink.inserted)
}

func TestProcessSignature_FailedTransactionKeptWhenIncludeFailedIsTrue(t *testing.T) {
	detail := &parser.Detail{
		Signatures:  []string{"AAA...001"},
		AccountKeys: []string{"F...fee"},
		Meta: parser.DetailMeta{
			Err:          map[string]any{"InstructionError": []any{}},
			PreBalances:  []int64{1000},
			PostBalances: []int64{500},
		},
	}
	sink := &fakeSink{}
	l := New(&fakeStream{}, &fakeEnricher{detail: detail}, sink, nil, metrics.New(), discardLogger(), "F...fee", true)

	l.processSignature(context.Background(), "AAA...001")

	require.Len(t, sink.inserted, 1)
	assert.False(t, sink.inserted[0].Success)
}

func TestProcessSignature_NonRetriableEnrichmentErrorDropsRecord(t *testing.T) {
	sink := &fakeSink{}
	enricher := &fakeEnricher{err: &apperr.EnrichmentError{Signature: "AAA...001", Retriable: false, Cause: errors.New("404")}}
	l := New(&fakeStream{}, enricher, sink, nil, metrics.New(), discardLogger(), "F...fee", false)

	l.processSignature(context.Background(), "AAA...001")

	assert.Empty(t, sink.inserted)
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	stream := &fakeStream{}
	l := New(stream, &fakeEnricher{}, &fakeSink{}, nil, metrics.New(), discardLogger(), "F...fee", false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Run(ctx)
	assert.NoError(t, err)
}

func TestStreamStale(t *testing.T) {
	l := New(&fakeStream{}, &fakeEnricher{}, &fakeSink{}, nil, metrics.New(), discardLogger(), "F...fee", false)
	l.setState(StateBackoff)
	l.backoffEnteredAt = time.Now().Add(-10 * time.Minute)

	assert.True(t, l.StreamStale(5*time.Minute))
	assert.False(t, l.StreamStale(20*time.Minute))
}
