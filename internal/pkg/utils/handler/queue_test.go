package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vgarvardt/gue/v5"
)

type testMsg struct {
	ID string `json:"id"`
}

type testData struct {
	calls     int
	failCalls int
	err       error
}

func testHandler(ctx context.Context, m *testMsg, d *testData) error {
	d.calls++
	return d.err
}

func testFailure(d *testData, err error) func(context.Context, *testMsg, error) error {
	return func(ctx context.Context, m *testMsg, _ error) error {
		d.failCalls++
		return err
	}
}

func newJob(t *testing.T, m *testMsg, errCount int32) *gue.Job {
	t.Helper()
	b, err := json.Marshal(m)
	require.Nil(t, err)
	return &gue.Job{Type: "olia", Queue: "olia", Args: b, ErrorCount: errCount}
}

func Test_Create_OK(t *testing.T) {
	d := &testData{}
	wf := Create(d, testHandler, DefaultOpts[testMsg]())
	err := wf(context.Background(), newJob(t, &testMsg{ID: "1"}, 0))
	assert.Nil(t, err)
	assert.Equal(t, 1, d.calls)
}

func Test_Create_BadJSON(t *testing.T) {
	d := &testData{}
	wf := Create(d, testHandler, DefaultOpts[testMsg]())
	j := &gue.Job{Type: "olia", Args: []byte("{olia")}
	err := wf(context.Background(), j)
	// unmarshal failures retry by default policy
	assert.NotNil(t, err)
	assert.Equal(t, 0, d.calls)
}

func Test_Create_RetryableReschedules(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia err")}
	wf := Create(d, testHandler, DefaultOpts[testMsg]())
	err := wf(context.Background(), newJob(t, &testMsg{ID: "1"}, 0))
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "olia err")
}

func Test_Create_ExhaustedCallsFailureHandler(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia err")}
	wf := Create(d, testHandler, DefaultOpts[testMsg]().WithFailure(testFailure(d, nil)))
	err := wf(context.Background(), newJob(t, &testMsg{ID: "1"}, 2))
	assert.Nil(t, err)
	assert.Equal(t, 1, d.failCalls)
}

func Test_Create_NonRetryableGoesToFailure(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia err")}
	p := RetryPolicy{MaxAttempts: 3, Backoff: NoBackoff(), Retryable: func(error) bool { return false }}
	wf := Create(d, testHandler, DefaultOpts[testMsg]().WithPolicy(p).WithFailure(testFailure(d, nil)))
	err := wf(context.Background(), newJob(t, &testMsg{ID: "1"}, 0))
	assert.Nil(t, err)
	assert.Equal(t, 1, d.failCalls)
}

func Test_Create_FailureHandlerErrReschedules(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia err")}
	wf := Create(d, testHandler, DefaultOpts[testMsg]().WithFailure(testFailure(d, fmt.Errorf("db err"))))
	err := wf(context.Background(), newJob(t, &testMsg{ID: "1"}, 2))
	assert.NotNil(t, err)
}

func Test_Create_FailureHandlerErrGivesUpEventually(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia err")}
	wf := Create(d, testHandler, DefaultOpts[testMsg]().WithFailure(testFailure(d, fmt.Errorf("db err"))))
	err := wf(context.Background(), newJob(t, &testMsg{ID: "1"}, 6))
	assert.Nil(t, err)
}

func Test_ExpBackoff(t *testing.T) {
	b := ExpBackoff(time.Minute)
	for i, want := range []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute} {
		d := b(i + 1)
		assert.GreaterOrEqual(t, d, want/2)
		assert.Less(t, d, want)
	}
	// clamped at 10 doublings
	assert.Less(t, b(100), time.Minute*1024)
	assert.GreaterOrEqual(t, b(0), time.Minute/2)
}

func Test_NoBackoff(t *testing.T) {
	assert.Equal(t, time.Duration(0), NoBackoff()(5))
}

func Test_BackoffOrTest(t *testing.T) {
	b := ExpBackoff(time.Minute)
	assert.Equal(t, time.Duration(0), BackoffOrTest(b, true)(3))
	assert.NotEqual(t, time.Duration(0), BackoffOrTest(b, false)(3))
}

func Test_DefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, int32(3), p.MaxAttempts)
	assert.True(t, p.Retryable(fmt.Errorf("any")))
}
