package api

import (
	"errors"
	"strings"
)

// ErrProviderUnavailable indicates a transient provider failure,
// the job may be retried by the task queue
type ErrProviderUnavailable struct {
	err error
}

// NewErrProviderUnavailable creates new error
func NewErrProviderUnavailable(err error) error {
	return &ErrProviderUnavailable{err: err}
}

func (e *ErrProviderUnavailable) Error() string {
	return "provider unavailable: " + e.err.Error()
}

func (e *ErrProviderUnavailable) Unwrap() error {
	return e.err
}

// ErrQuotaExceeded indicates the provider rejected the call on quota grounds. Permanent
type ErrQuotaExceeded struct {
	err error
}

// NewErrQuotaExceeded creates new error
func NewErrQuotaExceeded(err error) error {
	return &ErrQuotaExceeded{err: err}
}

func (e *ErrQuotaExceeded) Error() string {
	return "quota exceeded: " + e.err.Error()
}

func (e *ErrQuotaExceeded) Unwrap() error {
	return e.err
}

// ErrInvalidAudio indicates the audio was rejected. Permanent, user facing
type ErrInvalidAudio struct {
	err error
}

// NewErrInvalidAudio creates new error
func NewErrInvalidAudio(err error) error {
	return &ErrInvalidAudio{err: err}
}

func (e *ErrInvalidAudio) Error() string {
	return "invalid audio: " + e.err.Error()
}

func (e *ErrInvalidAudio) Unwrap() error {
	return e.err
}

// ErrConfiguration indicates an unrecoverable setup problem. Permanent
type ErrConfiguration struct {
	err error
}

// NewErrConfiguration creates new error
func NewErrConfiguration(err error) error {
	return &ErrConfiguration{err: err}
}

func (e *ErrConfiguration) Error() string {
	return "configuration error: " + e.err.Error()
}

func (e *ErrConfiguration) Unwrap() error {
	return e.err
}

// ErrResultNotFound indicates the result blob never became visible
// within the bounded backoff window
type ErrResultNotFound struct {
	err error
}

// NewErrResultNotFound creates new error
func NewErrResultNotFound(err error) error {
	return &ErrResultNotFound{err: err}
}

func (e *ErrResultNotFound) Error() string {
	return "result not found: " + e.err.Error()
}

func (e *ErrResultNotFound) Unwrap() error {
	return e.err
}

// ErrTimeout indicates the hard polling ceiling was exceeded. Never auto-retried
type ErrTimeout struct {
	err error
}

// NewErrTimeout creates new error
func NewErrTimeout(err error) error {
	return &ErrTimeout{err: err}
}

func (e *ErrTimeout) Error() string {
	return "operation timeout: " + e.err.Error()
}

func (e *ErrTimeout) Unwrap() error {
	return e.err
}

// IsTransient indicates the error may be retried by the task queue.
// Unclassified errors are transient, all permanent classes and the
// polling timeout are not
func IsTransient(err error) bool {
	var eQuota *ErrQuotaExceeded
	var eAudio *ErrInvalidAudio
	var eCfg *ErrConfiguration
	var eTimeout *ErrTimeout
	var eNotFound *ErrResultNotFound
	if errors.As(err, &eQuota) || errors.As(err, &eAudio) || errors.As(err, &eCfg) ||
		errors.As(err, &eTimeout) || errors.As(err, &eNotFound) {
		return false
	}
	return true
}

// IsServerError indicates a transient provider side failure eligible for
// the fallback-to-primary path. The "server error" substring check keeps
// the legacy contract for providers returning opaque errors
func IsServerError(err error) bool {
	var e *ErrProviderUnavailable
	if errors.As(err, &e) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "server error")
}

// Code maps an error to its persisted classification
func Code(err error) string {
	var eQuota *ErrQuotaExceeded
	var eAudio *ErrInvalidAudio
	var eCfg *ErrConfiguration
	var eTimeout *ErrTimeout
	var eNotFound *ErrResultNotFound
	switch {
	case errors.As(err, &eQuota):
		return "QUOTA_EXCEEDED"
	case errors.As(err, &eAudio):
		return "INVALID_AUDIO"
	case errors.As(err, &eCfg):
		return "CONFIGURATION_ERROR"
	case errors.As(err, &eTimeout):
		return "TIMEOUT"
	case errors.As(err, &eNotFound):
		return "RESULT_NOT_FOUND"
	}
	return "SERVICE_ERROR"
}
