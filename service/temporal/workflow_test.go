package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func TestReconcileWorkflow_NoGap(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.FetchSinkSignatures)
	env.RegisterActivity(activities.FetchUpstreamSignatures)
	env.RegisterActivity(activities.RecordGap)

	env.OnActivity(activities.FetchSinkSignatures, mock.Anything, mock.Anything).
		Return(&FetchSinkSignaturesResult{Signatures: []string{"AAA...001", "AAA...002"}}, nil)
	env.OnActivity(activities.FetchUpstreamSignatures, mock.Anything, mock.Anything).
		Return(&FetchUpstreamSignaturesResult{Signatures: []string{"AAA...001", "AAA...002"}}, nil)
	env.OnActivity(activities.RecordGap, mock.Anything, RecordGapInput{GapCount: 0}).Return(nil)

	env.ExecuteWorkflow(ReconcileWorkflow, ReconcileInput{Account: testAccount})

	require.NoError(t, env.GetWorkflowError())

	var result ReconcileResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 2, result.SinkSignatureCount)
	assert.Equal(t, 2, result.UpstreamSignatureCount)
	assert.Empty(t, result.MissingSignatures)
}

func TestReconcileWorkflow_ReportsGap(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.FetchSinkSignatures)
	env.RegisterActivity(activities.FetchUpstreamSignatures)
	env.RegisterActivity(activities.RecordGap)

	env.OnActivity(activities.FetchSinkSignatures, mock.Anything, mock.Anything).
		Return(&FetchSinkSignaturesResult{Signatures: []string{"AAA...001"}}, nil)
	env.OnActivity(activities.FetchUpstreamSignatures, mock.Anything, mock.Anything).
		Return(&FetchUpstreamSignaturesResult{Signatures: []string{"AAA...001", "AAA...002"}}, nil)
	env.OnActivity(activities.RecordGap, mock.Anything, RecordGapInput{GapCount: 1}).Return(nil)

	env.ExecuteWorkflow(ReconcileWorkflow, ReconcileInput{Account: testAccount})

	assert.NoError(t, env.GetWorkflowError())

	var result ReconcileResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, []string{"AAA...002"}, result.MissingSignatures)
}

func TestReconcileWorkflow_FetchSinkFails(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.FetchSinkSignatures)
	env.RegisterActivity(activities.FetchUpstreamSignatures)
	env.RegisterActivity(activities.RecordGap)

	env.OnActivity(activities.FetchSinkSignatures, mock.Anything, mock.Anything).
		Return(nil, errors.New("sink unreachable"))

	env.ExecuteWorkflow(ReconcileWorkflow, ReconcileInput{Account: testAccount})

	assert.Error(t, env.GetWorkflowError())
}
