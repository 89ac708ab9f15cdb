package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111"

// pickyWallet accepts personal_sign only with exactly one parameter pair.
type pickyWallet struct {
	accept *[2]string
	calls  int
	native bool
}

func (w *pickyWallet) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	if method != "personal_sign" {
		return nil, errors.New("unexpected " + method)
	}
	w.calls++
	got := [2]string{params[0].(string), params[1].(string)}
	if w.accept != nil && got == *w.accept {
		return json.RawMessage(`"0xsig"`), nil
	}
	return nil, fmt.Errorf("rejected attempt %d", w.calls)
}

type nativeWallet struct {
	pickyWallet
	sig string
	err error
}

func (w *nativeWallet) SignMessage(context.Context, string) (string, error) {
	return w.sig, w.err
}

func TestSignSucceedsForEveryShape(t *testing.T) {
	for i, c := range Candidates("m1", testAddr) {
		params := c.Params
		w := &pickyWallet{accept: &params}
		sig, err := NewAdapter().Sign(context.Background(), w, wallet.VendorMetaMask, "m1", testAddr)
		require.NoError(t, err, c.Shape)
		assert.Equal(t, "0xsig", sig)
		assert.Equal(t, i+1, w.calls, c.Shape)
	}
}

func TestSignFailsAfterFourAttempts(t *testing.T) {
	w := &pickyWallet{}
	_, err := NewAdapter().Sign(context.Background(), w, wallet.VendorUnknown, "m1", testAddr)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureFailed))
	assert.Equal(t, 4, w.calls)
	assert.Contains(t, err.Error(), "rejected attempt 4")
}

func TestSignCandidateOrder(t *testing.T) {
	c := Candidates("hi", testAddr)
	require.Len(t, c, 4)
	assert.Equal(t, [2]string{"0x6869", testAddr}, c[0].Params)
	assert.Equal(t, [2]string{testAddr, "0x6869"}, c[1].Params)
	assert.Equal(t, [2]string{"hi", testAddr}, c[2].Params)
	assert.Equal(t, [2]string{testAddr, "hi"}, c[3].Params)
}

func TestSignEmptySignatureIsRejected(t *testing.T) {
	w := &emptyWallet{}
	_, err := NewAdapter().Sign(context.Background(), w, wallet.VendorUnknown, "m1", testAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureFailed))
	assert.Equal(t, 4, w.calls)
}

type emptyWallet struct{ calls int }

func (w *emptyWallet) Request(context.Context, string, ...any) (json.RawMessage, error) {
	w.calls++
	return json.RawMessage(`""`), nil
}

func TestSignNativeShortCircuits(t *testing.T) {
	w := &nativeWallet{sig: "0xnative"}
	sig, err := NewAdapter().Sign(context.Background(), w, wallet.VendorEmbedded, "m1", testAddr)
	require.NoError(t, err)
	assert.Equal(t, "0xnative", sig)
	assert.Zero(t, w.calls)
}

func TestSignNativeIgnoredWithoutCapability(t *testing.T) {
	params := Candidates("m1", testAddr)[0].Params
	w := &nativeWallet{pickyWallet: pickyWallet{accept: &params}, sig: "0xnative"}
	sig, err := NewAdapter().Sign(context.Background(), w, wallet.VendorMetaMask, "m1", testAddr)
	require.NoError(t, err)
	assert.Equal(t, "0xsig", sig)
}

func TestSignNativeFailureFallsBack(t *testing.T) {
	params := Candidates("m1", testAddr)[3].Params
	w := &nativeWallet{pickyWallet: pickyWallet{accept: &params}, err: errors.New("popup closed")}
	sig, err := NewAdapter().Sign(context.Background(), w, wallet.VendorEmbedded, "m1", testAddr)
	require.NoError(t, err)
	assert.Equal(t, "0xsig", sig)
	assert.Equal(t, 4, w.calls)
}

func TestSignWithoutTransport(t *testing.T) {
	_, err := NewAdapter().Sign(context.Background(), nil, wallet.VendorUnknown, "m1", testAddr)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoWalletProvider))
}
