package apperrors

import "fmt"

// Error is the structured error type threaded through the indexing and
// query pipeline. It carries enough context to classify, log, and present
// the failure without leaking a stack trace to the caller.
type Error struct {
	Kind       Kind
	Op         string // the operation that failed, e.g. "indexer.UpsertBatch"
	Message    string
	Details    map[string]string
	Cause      error
	Retryable  bool
	Severity   Severity
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by Kind, which is how callers should branch on
// error taxonomy (errors.Is(err, apperrors.New(apperrors.KindNotFound, ...))).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error with kind-derived defaults for severity and
// retryability.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Retryable: retryableKind(kind),
		Severity:  severityForKind(kind),
	}
}

// Wrap adapts a plain error into an Error, using the error's own message.
// Returns nil if err is nil so call sites can do `return apperrors.Wrap(...)`
// without a separate nil check.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(kind, op, err.Error(), err)
}

// WithDetail attaches a key-value pair of additional context and returns the
// receiver for chaining. Never attach secrets (ssh passphrases, tokens) —
// Details are surfaced verbatim in logs and to callers.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable hint for the caller.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithSeverity overrides the kind-derived default severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return ""
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	ae, ok := err.(*Error)
	return ok && ae.Retryable
}

// IsFatal reports whether err is an *Error with fatal severity.
func IsFatal(err error) bool {
	ae, ok := err.(*Error)
	return ok && ae.Severity == SeverityFatal
}

// Validation is a convenience constructor for Validation errors: the
// message should name the offending argument.
func Validation(op, message string) *Error {
	return New(KindValidation, op, message, nil)
}

// NotFound is a convenience constructor for NotFound errors.
func NotFound(op, message string) *Error {
	return New(KindNotFound, op, message, nil)
}

// AccessDenied is a convenience constructor for AccessDenied errors.
func AccessDenied(op, message string) *Error {
	return New(KindAccessDenied, op, message, nil)
}
