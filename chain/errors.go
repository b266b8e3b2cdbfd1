package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrAllEndpointsUnavailable is returned when every configured RPC
	// endpoint is either circuit-open or has exhausted its retries.
	ErrAllEndpointsUnavailable = errors.New("all RPC endpoints unavailable")

	// ErrTimeout is returned when a call exceeded its deadline.
	ErrTimeout = errors.New("RPC call timed out")

	// ErrDecode is returned for malformed RPC responses.
	ErrDecode = errors.New("malformed RPC response")
)

// RPCError is a protocol-level JSON-RPC error. The endpoint answered, so it
// does not count against endpoint health.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
