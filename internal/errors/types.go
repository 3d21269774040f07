package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindInternal covers anything not classified below.
	KindInternal Kind = iota
	// KindValidation - client input defect.
	KindValidation
	// KindNotFound - missing or forbidden resource.
	KindNotFound
	// KindPersist - store write failed.
	KindPersist
	// KindCorruptStore - non-fatal, the store reads as empty.
	KindCorruptStore
	// KindUpstream - external AI collaborator failed.
	KindUpstream
	// KindTooLarge - request body or upload over the configured cap.
	KindTooLarge
	// KindUnavailable - a collaborator is not configured.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPersist:
		return "persist"
	case KindCorruptStore:
		return "corrupt_store"
	case KindUpstream:
		return "upstream"
	case KindTooLarge:
		return "too_large"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// ValidationError reports client input defects. Fields lists every offending
// field or file key; Reason carries a short human readable cause.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Fields) > 0 && e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
	case len(e.Fields) > 0:
		return "invalid fields: " + strings.Join(e.Fields, ", ")
	case e.Reason != "":
		return e.Reason
	default:
		return "validation failed"
	}
}

// NewValidationError builds a ValidationError.
func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Reason: reason, Fields: fields}
}

// NotFoundError reports a missing or forbidden resource. It never carries a
// filesystem path.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	resource := e.Resource
	if resource == "" {
		resource = "resource"
	}
	return resource + " not found"
}

// PersistError reports that the store could not durably write.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// CorruptStoreError is a warning: the record file could not be read or
// decoded and the store is treated as empty.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("record store %s unreadable: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a failure of the external AI collaborator.
type UpstreamError struct {
	Service    string // chat, speech
	StatusCode int    // HTTP status code if applicable
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s service error (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s service error: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// TooLargeError reports that a payload exceeded its byte limit.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("payload exceeded limit of %d bytes", e.Limit)
}

// UnavailableError reports that a collaborator is not configured.
type UnavailableError struct {
	Service string
}

func (e *UnavailableError) Error() string {
	return e.Service + " service is not configured"
}

// KindOf classifies err. Wrapped errors are unwrapped with errors.As.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		persist     *PersistError
		corrupt     *CorruptStoreError
		upstream    *UpstreamError
		tooLarge    *TooLargeError
		unavailable *UnavailableError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &tooLarge):
		return KindTooLarge
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &persist):
		return KindPersist
	case errors.As(err, &corrupt):
		return KindCorruptStore
	case errors.As(err, &unavailable):
		return KindUnavailable
	case errors.As(err, &upstream):
		return KindUpstream
	}
	return KindInternal
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsCorruptStore reports whether err is a CorruptStoreError.
func IsCorruptStore(err error) bool {
	var corrupt *CorruptStoreError
	return errors.As(err, &corrupt)
}

// IsTransient reports whether an upstream call is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode > 0 {
		return isTransientHTTPStatus(upstream.StatusCode)
	}

	if isNetworkError(err) || isSyscallError(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
