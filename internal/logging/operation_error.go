package logging

import (
	"context"
	"fmt"
	"strings"
)

// OperationError annotates an error with the operation, document and request it belongs to.
type OperationError struct {
	Operation  string
	DocumentID string
	RequestID  string
	Err        error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var scope []string
	if e.DocumentID != "" {
		scope = append(scope, "document_id="+e.DocumentID)
	}
	if e.RequestID != "" {
		scope = append(scope, "request_id="+e.RequestID)
	}
	if len(scope) == 0 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(scope, " "), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation and document it occurred in,
// plus the request id carried by ctx. A nil err yields nil.
func NewOperationError(ctx context.Context, operation, documentID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{
		Operation:  operation,
		DocumentID: documentID,
		RequestID:  RequestIDFromContext(ctx),
		Err:        err,
	}
}
