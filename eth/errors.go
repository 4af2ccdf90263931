package eth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind classifies every failure the wallet core can report.
type ErrorKind int

const (
	KindInvalidKeyFormat ErrorKind = iota + 1
	KindInvalidAddress
	KindRpcUnavailable
	KindNotAToken
	KindInvalidFeeQuote
	KindSimulationReverted
	KindSigningFailed
	KindBroadcastFailed
	KindRejected
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidKeyFormat:
		return "invalid key format"
	case KindInvalidAddress:
		return "invalid address"
	case KindRpcUnavailable:
		return "rpc unavailable"
	case KindNotAToken:
		return "not a token"
	case KindInvalidFeeQuote:
		return "invalid fee quote"
	case KindSimulationReverted:
		return "simulation reverted"
	case KindSigningFailed:
		return "signing failed"
	case KindBroadcastFailed:
		return "broadcast failed"
	case KindRejected:
		return "rejected"
	case KindInvalidRequest:
		return "invalid request"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Error is the single error type returned by the wallet core. Reason holds the
// node-supplied message (revert reason, rejection text) when one exists.
type Error struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidKeyFormat   = &Error{Kind: KindInvalidKeyFormat}
	ErrInvalidAddress     = &Error{Kind: KindInvalidAddress}
	ErrRpcUnavailable     = &Error{Kind: KindRpcUnavailable}
	ErrNotAToken          = &Error{Kind: KindNotAToken}
	ErrInvalidFeeQuote    = &Error{Kind: KindInvalidFeeQuote}
	ErrSimulationReverted = &Error{Kind: KindSimulationReverted}
	ErrSigningFailed      = &Error{Kind: KindSigningFailed}
	ErrBroadcastFailed    = &Error{Kind: KindBroadcastFailed}
	ErrRejected           = &Error{Kind: KindRejected}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		return msg + ": " + e.Reason
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test against the
// package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether repeating the failed step cannot duplicate a
// submission: reads, and anything that failed before the network saw a
// signed transaction.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRpcUnavailable, KindSimulationReverted:
		return true
	default:
		return false
	}
}

// OutcomeUnknown reports whether a signed transaction may have reached the
// network. Callers must re-query the chain by nonce or hash before retrying.
func (e *Error) OutcomeUnknown() bool {
	return e.Kind == KindBroadcastFailed
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind ErrorKind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if err != nil {
		e.Reason = nodeReason(err)
	}
	return e
}

func newErrorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// isNodeError reports whether err is a JSON-RPC error object returned by the
// node, as opposed to a transport failure.
func isNodeError(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// revertErrorCode is the JSON-RPC error code geth uses for execution reverts.
const revertErrorCode = 3

// isRevert reports whether err is a node error saying the EVM reverted, as
// opposed to rate limiting, internal errors or missing state.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.ErrorCode() == revertErrorCode ||
		strings.Contains(strings.ToLower(rpcErr.Error()), "execution reverted")
}

// nodeReason extracts the most specific message available: a decoded
// Error(string) revert payload, or the node's own message.
func nodeReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}
