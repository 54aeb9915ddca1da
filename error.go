package work

import (
	"errors"
	"fmt"
)

// ErrorWithCode is an error interface that implements error and Code()
type ErrorWithCode interface {
	error
	Code() int32
}

type errorWithCode struct {
	err  error
	code int32
}

func (e errorWithCode) Error() string {
	return e.err.Error()
}

func (e errorWithCode) Unwrap() error {
	return e.err
}

func (e errorWithCode) Code() int32 {
	return e.code
}

const (
	errCodeNetworkError int32 = -50001
	errCodeDecodeError  int32 = -50002
	errCodeEncodeError  int32 = -50003
)

// Error definitions.
var (
	ErrGeneratorShutdown    = errors.New("work generator is shut down")
	ErrCancelled            = errors.New("work request cancelled")
	ErrNoDifficultyPolicy   = errors.New("no difficulty policy configured")
	ErrInvalidRootSize      = fmt.Errorf("root must be exactly %d bytes", RootSize)
	ErrInvalidDifficulty    = errors.New("invalid difficulty")
	ErrInvalidSolution      = errors.New("solution does not satisfy target difficulty")
	ErrInvalidMultiplier    = errors.New("multiplier must be a positive finite number")
	ErrInvalidThreadCount   = fmt.Errorf("thread count must be between 1 and %d", maxCPUThreads)
	ErrInvalidCacheCapacity = errors.New("cache capacity must be positive")
	ErrInvalidRemoteConfig  = errors.New("remote work service requires url, user and api key")
	ErrInvalidNodeConfig    = errors.New("node rpc server address is empty")
	ErrDuplicateGenerator   = errors.New("the same generator instance cannot be raced against itself")
	ErrOpenCLUnavailable    = errors.New("opencl is not available")
	ErrInvalidDevice        = errors.New("invalid opencl platform or device")
	ErrUnknownSubtype       = errors.New("unknown block subtype")
	ErrNilBlock             = errors.New("block is nil")
	ErrNilGenerator         = errors.New("generator is nil")
	ErrNoGenerators         = errors.New("no generator accepted the request")
)

// IsCancelled returns whether err reports a cancelled work request. A
// cancelled request is not a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// RemoteError is returned when a remote work service answers with an error
// field. It implements the net.Error style Timeout() and Temporary() so
// callers can tell a remote timeout (worth retrying elsewhere) from other
// failures such as bad credentials.
type RemoteError struct {
	Service string
	Message string
	timeout bool
}

// NewRemoteError creates a RemoteError.
func NewRemoteError(service, message string, timeout bool) *RemoteError {
	return &RemoteError{Service: service, Message: message, timeout: timeout}
}

func (e *RemoteError) Error() string {
	if e.timeout {
		return fmt.Sprintf("%s: remote timeout: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// Timeout returns whether the remote service reported a timeout.
func (e *RemoteError) Timeout() bool { return e.timeout }

// Temporary returns whether the failure may succeed if retried.
func (e *RemoteError) Temporary() bool { return e.timeout }

// RPCError is an error field returned by a node RPC action. It implements
// ErrorWithCode with code -1.
type RPCError struct {
	Action  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Action, e.Message)
}

// Code returns -1, the code of errors reported by the node itself.
func (e *RPCError) Code() int32 {
	return -1
}
