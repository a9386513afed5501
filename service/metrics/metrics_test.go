package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransactionProcessed(t *testing.T) {
	m := New()
	m.RecordTransactionProcessed("acct1", 1700000000)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactionsProcessedTotal.WithLabelValues("acct1")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.lastTransactionTimestamp))
}

func TestRecordTransactionProcessed_ZeroBlockTimeDoesNotOverwrite(t *testing.T) {
	m := New()
	m.RecordTransactionProcessed("acct1", 1700000000)
	m.RecordTransactionProcessed("acct1", 0)

	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.lastTransactionTimestamp))
}

func TestRecordTransactionFailed(t *testing.T) {
	m := New()
	m.RecordTransactionFailed("acct1", "parse_error")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactionsFailedTotal.WithLabelValues("acct1", "parse_error")))
}

func TestRecordStreamReconnection(t *testing.T) {
	m := New()
	m.RecordStreamReconnection()
	m.RecordStreamReconnection()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.streamReconnectionsTotal))
}

func TestRecordBalanceChanges(t *testing.T) {
	m := New()
	m.RecordBalanceChanges(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.balanceChangesTotal))
}

func TestRecordError(t *testing.T) {
	m := New()
	m.RecordError("SinkTransientError")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errorsTotal.WithLabelValues("SinkTransientError")))
}

func TestSetStreamConnected(t *testing.T) {
	m := New()
	m.SetStreamConnected(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.streamConnected))
	m.SetStreamConnected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.streamConnected))
}

func TestSetReconciliationGap(t *testing.T) {
	m := New()
	m.SetReconciliationGap(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.reconciliationGapTotal))
	m.SetReconciliationGap(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.reconciliationGapTotal))
}
