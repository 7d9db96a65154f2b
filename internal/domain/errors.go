package domain

import (
	"errors"
	"fmt"
)

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an EngineError with the same code, so wrapped
// and re-messaged errors still match their sentinel with errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	if cause == nil {
		return &EngineError{Code: code, Message: msg}
	}
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Validation errors (-32010 to -32039) ----

var (
	ErrInvalidCenter     = &EngineError{Code: -32010, Message: "clash center is undefined"}
	ErrNoParticipants    = &EngineError{Code: -32011, Message: "clash has no participating elements"}
	ErrInvalidTransition = &EngineError{Code: -32012, Message: "invalid pipeline state transition"}
	ErrInvalidElevation  = &EngineError{Code: -32013, Message: "cut-plane elevation is not a finite number"}
	ErrInvalidStatus     = &EngineError{Code: -32014, Message: "unknown clash status"}
)

// ---- Cut-plane backend errors (-32040 to -32069) ----

var (
	ErrBackendUnavailable = &EngineError{Code: -32040, Message: "cut-plane backend not supported by view"}
	ErrBackendFailed      = &EngineError{Code: -32041, Message: "cut-plane backend failed"}
	ErrAllBackendsFailed  = &EngineError{Code: -32042, Message: "no cut-plane backend succeeded"}
	ErrUnknownBackend     = &EngineError{Code: -32043, Message: "unknown cut-plane backend"}
)

// ---- Persistence errors (-32070 to -32099) ----

var (
	ErrFolderCreate  = &EngineError{Code: -32070, Message: "failed to create folder"}
	ErrInsertFailed  = &EngineError{Code: -32071, Message: "failed to insert saved item"}
	ErrStoreInit     = &EngineError{Code: -32072, Message: "failed to initialize store"}
	ErrStoreQuery    = &EngineError{Code: -32073, Message: "store query failed"}
	ErrStoreWrite    = &EngineError{Code: -32074, Message: "store write failed"}
	ErrItemNotFound  = &EngineError{Code: -32075, Message: "saved item not found"}
	ErrCaptureFailed = &EngineError{Code: -32076, Message: "failed to capture viewpoint"}
)

// ---- Environment-fatal errors (-32100 to -32129) ----

var (
	ErrNoDocument        = &EngineError{Code: -32100, Message: "no active document"}
	ErrNoClashData       = &EngineError{Code: -32101, Message: "no clash test detected"}
	ErrNoEligibleClashes = &EngineError{Code: -32102, Message: "no valid clashes to process"}
	ErrInvalidFolder     = &EngineError{Code: -32103, Message: "no valid viewpoint folder"}
	ErrNoTestSelected    = &EngineError{Code: -32104, Message: "no clash test selected"}
)

// ---- Service / config errors (-32130 to -32159) ----

var (
	ErrConfigInvalid = &EngineError{Code: -32130, Message: "invalid configuration"}
	ErrRunInProgress = &EngineError{Code: -32131, Message: "a run is already in progress"}
	ErrRunNotFound   = &EngineError{Code: -32132, Message: "run not found"}
	ErrTestNotFound  = &EngineError{Code: -32133, Message: "clash test not found"}
)

// IsFatal reports whether err aborts a whole run rather than a single item.
func IsFatal(err error) bool {
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		return false
	}
	return engErr.Code <= -32100 && engErr.Code > -32130
}

// ProcessError is an item-level failure. It never escapes the batch loop;
// the runner records it in the summary and moves on.
type ProcessError struct {
	RecordName string
	State      string
	Cause      error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("clash %q failed in %s: %v", e.RecordName, e.State, e.Cause)
	}
	return fmt.Sprintf("clash %q failed: %v", e.RecordName, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// Reason returns the short cause string shown to users. It never includes a
// stack trace, only the innermost engine message or the raw cause text.
func (e *ProcessError) Reason() string {
	if e.Cause == nil {
		return "unknown error"
	}
	var engErr *EngineError
	if errors.As(e.Cause, &engErr) {
		return engErr.Message
	}
	return e.Cause.Error()
}
