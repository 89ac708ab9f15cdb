package wallet

import (
	"context"
	"encoding/json"
	"fmt"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
)

// Transport is an EIP-1193 style request channel to a wallet.
type Transport interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// RPCError is a provider error with its numeric code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// RPCCode exposes the provider code to packages that only know the interface.
func (e *RPCError) RPCCode() int {
	return e.Code
}

// decodeParam re-reads an arbitrary request parameter into a typed struct.
func decodeParam(param any, out any) error {
	raw, err := json.Marshal(param)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encodeResult(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
