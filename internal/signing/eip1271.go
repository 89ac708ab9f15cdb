package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// magicValue is the isValidSignature(bytes32,bytes) selector, returned by a
// wallet that accepts the signature.
var magicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

var walletABI = mustParseABI(`[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`)

// ErrNotContract means the address is an EOA, so there is no wallet contract
// to ask.
var ErrNotContract = errors.New("address has no contract code")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

type ContractVerifierOptions struct {
	RPCURL   string
	CacheTTL time.Duration
	Timeout  time.Duration // per RPC attempt
	Retries  int
	// Dial defaults to ethclient.
	Dial func(ctx context.Context, rpcURL string) (ethereum.ContractCaller, error)
}

// ContractVerifier asks a smart-contract wallet whether it accepts a
// signature. Answers are cached per wallet, digest and signature.
type ContractVerifier struct {
	opts ContractVerifierOptions

	mu      sync.Mutex
	client  ethereum.ContractCaller
	answers map[common.Hash]answer
}

type answer struct {
	valid   bool
	expires time.Time
}

func NewContractVerifier(opts ContractVerifierOptions) *ContractVerifier {
	opts.RPCURL = strings.TrimSpace(opts.RPCURL)
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	opts.Retries = max(opts.Retries, 0)
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, rpcURL string) (ethereum.ContractCaller, error) {
			return ethclient.DialContext(ctx, rpcURL)
		}
	}
	return &ContractVerifier{opts: opts, answers: make(map[common.Hash]answer)}
}

func (v *ContractVerifier) Enabled() bool {
	return v != nil && v.opts.RPCURL != ""
}

// Verify reports whether wallet accepts signature over digest. It returns
// ErrNotContract when wallet has no code.
func (v *ContractVerifier) Verify(ctx context.Context, wallet common.Address, digest common.Hash, signature []byte) (bool, error) {
	if !v.Enabled() {
		return false, errors.New("no rpc url configured for contract wallets")
	}
	key := crypto.Keccak256Hash(wallet.Bytes(), digest.Bytes(), signature)
	if valid, ok := v.cached(key); ok {
		return valid, nil
	}
	input, err := walletABI.Pack("isValidSignature", [32]byte(digest), signature)
	if err != nil {
		return false, fmt.Errorf("encode isValidSignature: %w", err)
	}

	var valid bool
	err = v.retry(ctx, func(ctx context.Context) error {
		client, err := v.dial(ctx)
		if err != nil {
			return err
		}
		code, err := client.CodeAt(ctx, wallet, nil)
		if err != nil {
			return fmt.Errorf("read code of %s: %w", wallet.Hex(), err)
		}
		if len(code) == 0 {
			return ErrNotContract
		}
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil)
		if err != nil {
			return fmt.Errorf("isValidSignature on %s: %w", wallet.Hex(), err)
		}
		valid = len(out) >= 4 && [4]byte(out[:4]) == magicValue
		return nil
	})
	if err != nil {
		return false, err
	}
	v.remember(key, valid)
	return valid, nil
}

// retry runs fn up to Retries+1 times with a linear pause between attempts.
// ErrNotContract is final.
func (v *ContractVerifier) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil || errors.Is(err, ErrNotContract) || attempt >= v.opts.Retries {
			return err
		}
		t := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

func (v *ContractVerifier) dial(ctx context.Context) (ethereum.ContractCaller, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client == nil {
		client, err := v.opts.Dial(ctx, v.opts.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", v.opts.RPCURL, err)
		}
		v.client = client
	}
	return v.client, nil
}

func (v *ContractVerifier) cached(key common.Hash) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.answers[key]
	if !ok || time.Now().After(a.expires) {
		delete(v.answers, key)
		return false, false
	}
	return a.valid, true
}

func (v *ContractVerifier) remember(key common.Hash, valid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.answers[key] = answer{valid: valid, expires: time.Now().Add(v.opts.CacheTTL)}
}
