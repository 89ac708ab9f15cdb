package signer

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestSigner_SignPersonal(t *testing.T) {
	key, _ := crypto.GenerateKey()
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	s, err := NewSigner(keyHex)
	assert.NoError(t, err)

	sig, err := s.SignPersonal([]byte("launch challenge"))
	assert.NoError(t, err)
	assert.Equal(t, 132, len(sig)) // 0x + 65 bytes * 2 = 132
	assert.True(t, strings.HasSuffix(sig, "1b") || strings.HasSuffix(sig, "1c"))
}

func TestVerifyPersonal(t *testing.T) {
	key, _ := crypto.GenerateKey()
	s := FromKey(key)
	msg := []byte("frontdoor wants you to sign in")

	sig, err := s.SignPersonal(msg)
	assert.NoError(t, err)

	assert.NoError(t, VerifyPersonal(msg, sig, s.Address().Hex()))
	assert.NoError(t, VerifyPersonal(msg, sig, strings.ToLower(s.Address().Hex())))

	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	assert.Error(t, VerifyPersonal(msg, sig, wrongAddr.Hex()))
	assert.Error(t, VerifyPersonal([]byte("other"), sig, s.Address().Hex()))
	assert.Error(t, VerifyPersonal(msg, "0xdead", s.Address().Hex()))
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("")
	assert.Error(t, err)
	_, err = NewSigner("zz")
	assert.Error(t, err)
}

func BenchmarkSignPersonal(b *testing.B) {
	key, _ := crypto.GenerateKey()
	s := FromKey(key)
	msg := []byte("benchmark message")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.SignPersonal(msg)
	}
}
