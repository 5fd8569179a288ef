package api

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unavailable", err: NewErrProviderUnavailable(fmt.Errorf("olia")), want: true},
		{name: "unclassified", err: fmt.Errorf("olia"), want: true},
		{name: "quota", err: NewErrQuotaExceeded(fmt.Errorf("olia")), want: false},
		{name: "audio", err: NewErrInvalidAudio(fmt.Errorf("olia")), want: false},
		{name: "config", err: NewErrConfiguration(fmt.Errorf("olia")), want: false},
		{name: "timeout", err: NewErrTimeout(fmt.Errorf("olia")), want: false},
		{name: "notFound", err: NewErrResultNotFound(fmt.Errorf("olia")), want: false},
		{name: "wrapped quota", err: fmt.Errorf("call: %w", NewErrQuotaExceeded(fmt.Errorf("olia"))), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsServerError(t *testing.T) {
	assert.True(t, IsServerError(NewErrProviderUnavailable(fmt.Errorf("olia"))))
	assert.True(t, IsServerError(fmt.Errorf("call: %w", NewErrProviderUnavailable(fmt.Errorf("olia")))))
	assert.True(t, IsServerError(fmt.Errorf("got Server Error from backend")))
	assert.False(t, IsServerError(fmt.Errorf("olia")))
	assert.False(t, IsServerError(nil))
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{err: NewErrQuotaExceeded(fmt.Errorf("olia")), want: "QUOTA_EXCEEDED"},
		{err: NewErrInvalidAudio(fmt.Errorf("olia")), want: "INVALID_AUDIO"},
		{err: NewErrConfiguration(fmt.Errorf("olia")), want: "CONFIGURATION_ERROR"},
		{err: NewErrTimeout(fmt.Errorf("olia")), want: "TIMEOUT"},
		{err: NewErrResultNotFound(fmt.Errorf("olia")), want: "RESULT_NOT_FOUND"},
		{err: NewErrProviderUnavailable(fmt.Errorf("olia")), want: "SERVICE_ERROR"},
		{err: fmt.Errorf("olia"), want: "SERVICE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	inner := fmt.Errorf("olia")
	for _, err := range []error{NewErrProviderUnavailable(inner), NewErrQuotaExceeded(inner),
		NewErrInvalidAudio(inner), NewErrConfiguration(inner), NewErrResultNotFound(inner),
		NewErrTimeout(inner)} {
		assert.Contains(t, err.Error(), "olia")
	}
}

func TestSortSegments(t *testing.T) {
	segs := []TranscriptSegment{{Start: 5}, {Start: 1}, {Start: 3}}
	SortSegments(segs)
	assert.Equal(t, 1.0, segs[0].Start)
	assert.Equal(t, 3.0, segs[1].Start)
	assert.Equal(t, 5.0, segs[2].Start)
}

func TestSegmentDuration(t *testing.T) {
	s := TranscriptSegment{Start: 1.5, End: 4.0}
	assert.InDelta(t, 2.5, s.Duration(), 0.0001)
}
