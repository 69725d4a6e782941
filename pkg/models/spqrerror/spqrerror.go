package spqrerror

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	SPQR_UNEXPECTED              = "SPQRU"
	SPQR_NOT_IMPLEMENTED         = "SPQRN"
	SPQR_INVARIANT_VIOLATION     = "SPQRI"
	SPQR_METADATA_CORRUPTION     = "SPQRZ"
	SPQR_INVALID_REQUEST         = "SPQRQ"
	SPQR_NETWORK_ERROR           = "SPQRO"
	SPQR_STALE_ROUTING           = "SPQRR"
	SPQR_WRITE_CONFLICT          = "SPQRW"
	SPQR_CURSOR_INVALIDATED      = "SPQRK"
	SPQR_INTERRUPTED             = "SPQRT"
	SPQR_CANCELED                = "SPQRA"
	SPQR_NOT_PRIMARY             = "SPQRP"
	SPQR_NO_SUCH_OPERATION       = "SPQRM"
	SPQR_OPERATION_EXISTS        = "SPQRE"
	SPQR_INDEX_BUILD_IN_PROGRESS = "SPQRB"
	SPQR_OPLOG_ERROR             = "SPQRL"
	SPQR_RESHARDING_ABORTED      = "SPQRX"
	SPQR_TRANSFER_ERROR          = "SPQRD"
)

var existingErrorCodeMap = map[string]string{
	SPQR_UNEXPECTED:              "Unexpected error",
	SPQR_NOT_IMPLEMENTED:         "Not implemented",
	SPQR_INVARIANT_VIOLATION:     "Invariant violation",
	SPQR_METADATA_CORRUPTION:     "Metadata corruption",
	SPQR_INVALID_REQUEST:         "Invalid request",
	SPQR_NETWORK_ERROR:           "Network error",
	SPQR_STALE_ROUTING:           "Stale routing metadata",
	SPQR_WRITE_CONFLICT:          "Write conflict",
	SPQR_CURSOR_INVALIDATED:      "Cursor invalidated",
	SPQR_INTERRUPTED:             "Interrupted",
	SPQR_CANCELED:                "Canceled",
	SPQR_NOT_PRIMARY:             "Not primary",
	SPQR_NO_SUCH_OPERATION:       "No such resharding operation",
	SPQR_OPERATION_EXISTS:        "Resharding operation already exists",
	SPQR_INDEX_BUILD_IN_PROGRESS: "Index build in progress",
	SPQR_OPLOG_ERROR:             "Replicated log error",
	SPQR_RESHARDING_ABORTED:      "Resharding operation aborted",
	SPQR_TRANSFER_ERROR:          "Data transfer error",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &SpqrError{}

type SpqrError struct {
	Err error

	ErrorCode string
	ErrHint   string
}

// New creates a new SpqrError with the given error code and error message.
func New(errorCode string, errorMsg string) *SpqrError {
	return &SpqrError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

// Newf creates a new SpqrError with the given error code and a formatted message.
func Newf(errorCode string, format string, a ...any) *SpqrError {
	return &SpqrError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// NewByCode creates a new SpqrError carrying the default message of the code.
func NewByCode(errorCode string) *SpqrError {
	return New(errorCode, GetMessageByCode(errorCode))
}

// Wrap attaches a code to an existing error, keeping it reachable through errors.Is/As.
func Wrap(errorCode string, err error) *SpqrError {
	return &SpqrError{
		Err:       err,
		ErrorCode: errorCode,
	}
}

func (er *SpqrError) Error() string {
	return er.Err.Error()
}

func (er *SpqrError) Unwrap() error {
	return er.Err
}

func (er *SpqrError) WithHint(hint string) *SpqrError {
	er.ErrHint = hint
	return er
}

// Code returns the code of the outermost SpqrError in the chain, or "" if there is none.
func Code(err error) string {
	var se *SpqrError
	if errors.As(err, &se) {
		return se.ErrorCode
	}
	return ""
}

func hasCode(err error, codes ...string) bool {
	for err != nil {
		var se *SpqrError
		if !errors.As(err, &se) {
			return false
		}
		for _, c := range codes {
			if se.ErrorCode == c {
				return true
			}
		}
		err = se.Err
	}
	return false
}

// IsRetriable reports transient network-shaped failures.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, SPQR_NETWORK_ERROR, SPQR_STALE_ROUTING, SPQR_WRITE_CONFLICT) {
		return true
	}
	if s, ok := status.FromError(err); ok && isRetriableGrpcCode(s.Code()) {
		return true
	}
	return false
}

func isRetriableGrpcCode(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func IsCursorInvalidated(err error) bool {
	return hasCode(err, SPQR_CURSOR_INVALIDATED)
}

func IsInterrupted(err error) bool {
	return hasCode(err, SPQR_INTERRUPTED)
}

// IsCancellation is true for context cancellation as well as explicit cancellation codes.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.Canceled {
		return true
	}
	return hasCode(err, SPQR_CANCELED)
}

func IsNotPrimary(err error) bool {
	return hasCode(err, SPQR_NOT_PRIMARY)
}

// AbortReason is the serializable form of a failure cause.
type AbortReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToAbortReason converts an error into its persisted form. Errors without a code get SPQR_UNEXPECTED.
func ToAbortReason(err error) *AbortReason {
	if err == nil {
		return nil
	}
	code := Code(err)
	if code == "" {
		code = SPQR_UNEXPECTED
	}
	return &AbortReason{
		Code:    code,
		Message: err.Error(),
	}
}

// FromAbortReason converts a persisted failure cause back into an error.
func FromAbortReason(r *AbortReason) error {
	if r == nil {
		return nil
	}
	return New(r.Code, r.Message)
}
