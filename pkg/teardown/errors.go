package teardown

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

// ErrorKind classifies why a finalize step failed.
type ErrorKind int

const (
	// KindTransport indicates the request to the API server failed for a reason
	// other than a conflict or a missing object (network errors, timeouts,
	// throttling, authorization).
	KindTransport ErrorKind = iota

	// KindConflict indicates an optimistic concurrency failure: the resource
	// version sent with a patch is stale.
	KindConflict

	// KindNotFound indicates the target object does not exist.
	KindNotFound

	// KindConfigMissing indicates a child kind has no entry in the RuntimeConfig
	// type registry.
	KindConfigMissing

	// KindHandler indicates the finalize handler could not be run to completion.
	KindHandler
)

// String returns a string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not-found"
	case KindConfigMissing:
		return "config-missing"
	case KindHandler:
		return "handler"
	default:
		return "unknown"
	}
}

var (
	// ErrMissingChildType is matched by errors.Is for every MissingTypeError.
	ErrMissingChildType = errors.New("child type is not registered in the runtime config")

	// ErrHandlerPanic is returned by HandlerPool.Invoke when the handler panics.
	ErrHandlerPanic = errors.New("finalize handler panicked")

	// ErrPoolStopped is returned by HandlerPool.Invoke once the pool has shut down.
	ErrPoolStopped = errors.New("handler pool is stopped")

	// ErrHandlerAbandoned is returned by HandlerPool.Invoke when ctx ended before
	// the handler result arrived.
	ErrHandlerAbandoned = errors.New("stopped waiting for finalize handler")

	// ErrCompletionChannelClosed is returned when a completion is sent after the
	// sender was closed.
	ErrCompletionChannelClosed = errors.New("completion channel is closed")

	// ErrCompletionChannelFull is returned when the completion channel did not
	// accept a message within the send timeout.
	ErrCompletionChannelFull = errors.New("completion channel is full")
)

// UpdateError is returned by every Client operation and by the finalize steps
// built on top of them.
type UpdateError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Op is the operation that failed ("delete", "patch").
	Op string

	// Type is the type descriptor string of the target.
	Type string

	// ID is the namespace/name of the target.
	ID types.NamespacedName

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *UpdateError) Error() string {
	return fmt.Sprintf("%s %s %s: %s: %v", e.Op, e.Type, e.ID, e.Kind, e.Cause)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *UpdateError) Unwrap() error {
	return e.Cause
}

// NewUpdateError wraps err for the given operation, classifying API server
// errors by kind. A nil err returns nil.
func NewUpdateError(op string, typ *K8sType, id types.NamespacedName, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpdateError
	if errors.As(err, &ue) {
		return err
	}
	typeName := ""
	if typ != nil {
		typeName = typ.String()
	}
	return &UpdateError{
		Kind:  ClassifyAPIError(err),
		Op:    op,
		Type:  typeName,
		ID:    id,
		Cause: err,
	}
}

// ClassifyAPIError maps an API server error onto an ErrorKind.
func ClassifyAPIError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrMissingChildType):
		return KindConfigMissing
	case apierrors.IsConflict(err):
		return KindConflict
	case apierrors.IsNotFound(err):
		return KindNotFound
	default:
		return KindTransport
	}
}

// KindOf returns the kind of err. Errors that are not UpdateErrors are
// classified with ClassifyAPIError.
func KindOf(err error) ErrorKind {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, ErrHandlerPanic) || errors.Is(err, ErrPoolStopped) || errors.Is(err, ErrHandlerAbandoned) {
		return KindHandler
	}
	return ClassifyAPIError(err)
}

// IsConflict returns true if err is an optimistic concurrency failure.
func IsConflict(err error) bool {
	return err != nil && KindOf(err) == KindConflict
}

// IsNotFound returns true if err reports a missing object.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// MissingTypeError reports a child whose kind has no registered K8sType.
type MissingTypeError struct {
	// GVK is the unregistered kind.
	GVK schema.GroupVersionKind

	// ID identifies the child that could not be resolved.
	ID types.NamespacedName
}

// Error implements the error interface.
func (e *MissingTypeError) Error() string {
	return fmt.Sprintf("no type registered for child %s of kind %s", e.ID, e.GVK)
}

// Is makes errors.Is(err, ErrMissingChildType) match.
func (e *MissingTypeError) Is(target error) bool {
	return target == ErrMissingChildType
}
