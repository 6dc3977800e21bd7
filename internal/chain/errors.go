package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// NetworkError marks connection and timeout failures. Transient; the
// refresher retries these.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// RPCError marks a well-formed error response from the endpoint.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message) }

// DecodeError marks a response that could not be parsed into the expected
// shape. Permanent for the attempt; never retried.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// classify maps a raw client error into the fetch error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var alreadyNet *NetworkError
	var alreadyRPC *RPCError
	var alreadyDecode *DecodeError
	if errors.As(err, &alreadyNet) || errors.As(err, &alreadyRPC) || errors.As(err, &alreadyDecode) {
		return err
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return &RPCError{Code: rpcErr.Code, Message: rpcErr.Message}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &DecodeError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &NetworkError{Err: err}
	}

	// The jsonrpc client reports unexpected payload shapes as plain errors;
	// anything else reaching here came off the wire.
	return &NetworkError{Err: err}
}

// Retryable reports whether a fetch error is worth another attempt.
func Retryable(err error) bool {
	var decodeErr *DecodeError
	return !errors.As(err, &decodeErr)
}
