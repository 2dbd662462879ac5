// Package evalerr defines the runtime (per-request) error variants produced
// while evaluating a resolver expression, as distinct from valid.Error which
// is strictly a compile-time concern. Grounded on the teacher's
// executor.GraphQLError pattern, split into named variants per the original
// source's resolver error enum.
package evalerr

import "fmt"

// Kind discriminates an EvalError's variant.
type Kind int

const (
	KindIOException Kind = iota
	KindJSException
	KindAPIValidationError
	KindDeserializeError
	KindExprEvalError
)

// EvalError is the runtime error type surfaced to the GraphQL response as a
// field error.
type EvalError struct {
	Kind    Kind
	Message string
	Op      string // the operation name, e.g. an @http op-name or @script source id
	Cause   error
}

func (e *EvalError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.kindName(), e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.kindName(), e.Message)
}

func (e *EvalError) Unwrap() error { return e.Cause }

func (e *EvalError) kindName() string {
	switch e.Kind {
	case KindIOException:
		return "IOException"
	case KindJSException:
		return "JSException"
	case KindAPIValidationError:
		return "APIValidationError"
	case KindDeserializeError:
		return "DeserializeError"
	case KindExprEvalError:
		return "ExprEvalError"
	default:
		return "EvalError"
	}
}

// IO wraps a transport-level failure (connection refused, timeout, non-2xx
// treated as failure by the caller, gRPC status error).
func IO(op string, cause error) *EvalError {
	return &EvalError{Kind: KindIOException, Message: cause.Error(), Op: op, Cause: cause}
}

// JS wraps a script-capability failure (exception thrown, timeout exceeded).
func JS(op string, cause error) *EvalError {
	return &EvalError{Kind: KindJSException, Message: cause.Error(), Op: op, Cause: cause}
}

// APIValidation wraps an input/output JSON-schema validation failure.
func APIValidation(op, message string) *EvalError {
	return &EvalError{Kind: KindAPIValidationError, Message: message, Op: op}
}

// Deserialize wraps a response-body decode failure (bad JSON, bad protobuf).
func Deserialize(op string, cause error) *EvalError {
	return &EvalError{Kind: KindDeserializeError, Message: cause.Error(), Op: op, Cause: cause}
}

// ExprEval wraps a math/logic evaluation failure (OperationFailed(op)).
func ExprEval(op, message string) *EvalError {
	return &EvalError{Kind: KindExprEvalError, Message: message, Op: op}
}
