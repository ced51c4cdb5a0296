package libcontainer

import "fmt"

// ErrorCode enumerates the runtime's error kinds: every operation
// fails with one of these, wrapping whatever system error caused it.
type ErrorCode int

const (
	// SystemError is the catch-all for host-side failures (syscalls,
	// filesystem, cgroup writes) that aren't one of the named conditions
	// below.
	SystemError ErrorCode = iota
	ConfigInvalid
	ContainerNotExists
	ContainerAlreadyExists
	ContainerNotStopped
	ContainerNotRunning
	ContainerNotPaused
	NoProcessOps
	// StateBusy is returned when an operation cannot acquire the
	// container's state-directory flock because another operation
	// already holds it.
	StateBusy
	// PermissionDenied is returned when the host denies an operation the
	// runtime itself never had a chance to attempt correctly, e.g. a
	// rootless user namespace mapping wider than the single range the
	// caller's own uid/gid allows without subuid/subgid delegation.
	PermissionDenied
	// CgroupUnsupported is returned when a requested cgroup resource or
	// controller isn't available on the host (missing controller,
	// unsupported v1/v2 combination).
	CgroupUnsupported
	// HookFailed is returned when an OCI lifecycle hook exits nonzero or
	// times out and its class is fatal.
	HookFailed
	// Protocol is returned when a cascade-stage message arrives
	// malformed or out of the expected sequence.
	Protocol
	// Syscall is returned when a raw kernel call the syscall facade
	// issued fails in a way not already covered by a more specific code.
	Syscall
)

func (c ErrorCode) String() string {
	switch c {
	case ConfigInvalid:
		return "ConfigInvalid"
	case ContainerNotExists:
		return "ContainerNotExists"
	case ContainerAlreadyExists:
		return "ContainerAlreadyExists"
	case ContainerNotStopped:
		return "ContainerNotStopped"
	case ContainerNotRunning:
		return "ContainerNotRunning"
	case ContainerNotPaused:
		return "ContainerNotPaused"
	case NoProcessOps:
		return "NoProcessOps"
	case StateBusy:
		return "StateBusy"
	case PermissionDenied:
		return "PermissionDenied"
	case CgroupUnsupported:
		return "CgroupUnsupported"
	case HookFailed:
		return "HookFailed"
	case Protocol:
		return "Protocol"
	case Syscall:
		return "Syscall"
	default:
		return "SystemError"
	}
}

// Error is the error type every exported Container/Process/Factory
// method returns
type Error interface {
	error
	Code() ErrorCode
}

type runtimeError struct {
	code    ErrorCode
	message string
	cause   error
}

func (e *runtimeError) Code() ErrorCode { return e.code }

func (e *runtimeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *runtimeError) Unwrap() error { return e.cause }

func newGenericError(err error, code ErrorCode) Error {
	return &runtimeError{code: code, message: err.Error(), cause: err}
}

func newSystemError(err error) Error {
	return newGenericError(err, SystemError)
}

func newSystemErrorWithCause(cause error, message string) Error {
	return &runtimeError{code: SystemError, message: message, cause: cause}
}

func newSystemErrorWithCausef(cause error, format string, args ...interface{}) Error {
	return &runtimeError{code: SystemError, message: fmt.Sprintf(format, args...), cause: cause}
}

func newConfigError(message string) Error {
	return &runtimeError{code: ConfigInvalid, message: message}
}
