package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/chain"
	"github.com/GoPolymarket/frontdoor/internal/signer"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
)

// KeyTransport answers the EIP-1193 methods the flow uses from a local
// secp256k1 key. It lets the launch flow run without a browser wallet.
type KeyTransport struct {
	signer  *signer.Signer
	address string

	mu      sync.Mutex
	chainID int64
	known   map[int64]bool
}

// NewKeyTransport builds a transport on chainID. Mainnet and the given chain
// are known; any other chain must be added before switching to it.
func NewKeyTransport(privateKeyHex string, chainID int64) (*KeyTransport, error) {
	s, err := signer.NewSigner(privateKeyHex)
	if err != nil {
		return nil, err
	}
	if chainID <= 0 {
		chainID = chain.MainnetChainID
	}
	return &KeyTransport{
		signer:  s,
		address: strings.ToLower(s.Address().Hex()),
		chainID: chainID,
		known:   map[int64]bool{chain.MainnetChainID: true, chainID: true},
	}, nil
}

// DialKeyTransport is NewKeyTransport with the starting chain read from an RPC node.
func DialKeyTransport(ctx context.Context, privateKeyHex, rpcURL string) (*KeyTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	defer client.Close()

	id, err := client.ChainID(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	return NewKeyTransport(privateKeyHex, id.Int64())
}

func (t *KeyTransport) Address() string {
	return t.address
}

func (t *KeyTransport) ChainID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chainID
}

func (t *KeyTransport) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return encodeResult([]string{t.address})
	case "eth_chainId":
		return encodeResult(chain.FormatHex(t.ChainID()))
	case "personal_sign":
		return t.personalSign(params)
	case "wallet_switchEthereumChain":
		return t.switchChain(params)
	case "wallet_addEthereumChain":
		return t.addChain(params)
	default:
		return nil, &RPCError{Code: CodeUnsupportedMethod, Message: "method not supported: " + method}
	}
}

// SignMessage signs message directly, skipping parameter negotiation.
func (t *KeyTransport) SignMessage(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.signer.SignPersonal([]byte(message))
}

// personalSign accepts both [message, address] and [address, message], with
// the message either 0x-hex or plain text.
func (t *KeyTransport) personalSign(params []any) (json.RawMessage, error) {
	if len(params) < 2 {
		return nil, &RPCError{Code: -32602, Message: "personal_sign expects two params"}
	}
	first, ok1 := params[0].(string)
	second, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return nil, &RPCError{Code: -32602, Message: "personal_sign params must be strings"}
	}

	var payload string
	switch {
	case SameAddress(second, t.address):
		payload = first
	case SameAddress(first, t.address):
		payload = second
	default:
		return nil, &RPCError{Code: CodeUnauthorized, Message: "requested account is not authorized"}
	}

	data := []byte(payload)
	if strings.HasPrefix(payload, "0x") {
		if decoded, err := hexutil.Decode(payload); err == nil {
			data = decoded
		}
	}
	sig, err := t.signer.SignPersonal(data)
	if err != nil {
		return nil, &RPCError{Code: -32603, Message: err.Error()}
	}
	return encodeResult(sig)
}

type chainParam struct {
	ChainID string `json:"chainId"`
}

func (t *KeyTransport) switchChain(params []any) (json.RawMessage, error) {
	id, err := requestedChain(params)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known[id] {
		return nil, &RPCError{Code: chain.CodeUnrecognizedChain, Message: "Unrecognized chain ID " + chain.FormatHex(id)}
	}
	t.chainID = id
	return json.RawMessage("null"), nil
}

func (t *KeyTransport) addChain(params []any) (json.RawMessage, error) {
	id, err := requestedChain(params)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known[id] = true
	t.chainID = id
	return json.RawMessage("null"), nil
}

func requestedChain(params []any) (int64, error) {
	if len(params) == 0 {
		return 0, &RPCError{Code: -32602, Message: "missing chain parameter"}
	}
	var p chainParam
	if err := decodeParam(params[0], &p); err != nil {
		return 0, &RPCError{Code: -32602, Message: err.Error()}
	}
	id, err := chain.ParseChainID(p.ChainID)
	if err != nil {
		return 0, &RPCError{Code: -32602, Message: err.Error()}
	}
	return id, nil
}
