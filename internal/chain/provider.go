// Package chain talks to an Ethereum JSON-RPC endpoint: an EIP-1193 style
// Provider, a typed Client over it and transaction Senders.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// RequestArguments is one JSON-RPC request.
type RequestArguments struct {
	Method string
	Params []any
}

// Provider executes raw JSON-RPC requests.
type Provider interface {
	Request(ctx context.Context, args RequestArguments) (json.RawMessage, error)
}

// RPCError is an error response from the node. It satisfies rpc.Error and
// rpc.DataError, so revert data survives wrapping.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error.
func (e *RPCError) ErrorCode() int { return e.Code }

// ErrorData implements rpc.DataError.
func (e *RPCError) ErrorData() any { return e.Data }

// RPCProvider is a Provider over go-ethereum's rpc.Client (HTTP, WebSocket
// or IPC).
type RPCProvider struct {
	client *rpc.Client
}

// Dial connects to url.
func Dial(ctx context.Context, url string) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &RPCProvider{client: c}, nil
}

// Request implements Provider.
func (p *RPCProvider) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.client.CallContext(ctx, &out, args.Method, args.Params...); err != nil {
		return nil, fromRPCError(err)
	}
	return out, nil
}

// Close closes the underlying connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}

func fromRPCError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	out := &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		out.Data = dataErr.ErrorData()
	}
	return out
}
