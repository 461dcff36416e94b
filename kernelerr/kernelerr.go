// Package kernelerr defines the kernel's error-kind taxonomy (spec.md §7):
// sentinel-wrapped *KernelError values distinguishable via errors.Is/As,
// mirroring the teacher's *ToolError/*ValidationError shape.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind classifies a KernelError for propagation decisions (spec.md §7).
type Kind string

const (
	NotFound              Kind = "NotFound"
	BadRequest             Kind = "BadRequest"
	ProviderTransient      Kind = "ProviderTransient"
	ProviderFatal          Kind = "ProviderFatal"
	CancelledByUser        Kind = "CancelledByUser"
	ContainmentViolation   Kind = "ContainmentViolation"
	ToolFailure            Kind = "ToolFailure"
	ToolReport             Kind = "ToolReport"
	RecursionLimitReached  Kind = "RecursionLimitReached"
)

// KernelError is the single error type the kernel raises; Kind drives how
// callers propagate or absorb it.
type KernelError struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *KernelError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *KernelError) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, kernelerr.New(kind, "")) style kind checks by
// comparing only the Kind field, ignoring Message/Wrapped.
func (e *KernelError) Is(target error) bool {
	t, ok := target.(*KernelError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a KernelError of the given kind.
func New(kind Kind, message string) *KernelError {
	return &KernelError{Kind: kind, Message: message}
}

// Wrap constructs a KernelError of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *KernelError {
	return &KernelError{Kind: kind, Message: message, Wrapped: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *KernelError.
func KindOf(err error) (Kind, bool) {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

// sentinel kind markers usable with errors.Is(err, kernelerr.NotFoundErr).
var (
	NotFoundErr             = &KernelError{Kind: NotFound}
	BadRequestErr           = &KernelError{Kind: BadRequest}
	ProviderTransientErr    = &KernelError{Kind: ProviderTransient}
	ProviderFatalErr        = &KernelError{Kind: ProviderFatal}
	CancelledByUserErr      = &KernelError{Kind: CancelledByUser}
	ContainmentViolationErr = &KernelError{Kind: ContainmentViolation}
	ToolFailureErr          = &KernelError{Kind: ToolFailure}
	ToolReportErr           = &KernelError{Kind: ToolReport}
	RecursionLimitErr       = &KernelError{Kind: RecursionLimitReached}
)
