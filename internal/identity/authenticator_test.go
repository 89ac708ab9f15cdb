package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const boundWallet = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111"

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CurrentUser(ctx context.Context) (*User, error) {
	args := m.Called(ctx)
	u, _ := args.Get(0).(*User)
	return u, args.Error(1)
}

func (m *mockProvider) InitSiwe(ctx context.Context, d WalletDescriptor) (string, error) {
	args := m.Called(ctx, d)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) LoginWithSiwe(ctx context.Context, d WalletDescriptor, message, signature string) (*User, error) {
	args := m.Called(ctx, d, message, signature)
	u, _ := args.Get(0).(*User)
	return u, args.Error(1)
}

func (m *mockProvider) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockProvider) IdentityToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func okSign(_ context.Context, message string) (string, error) {
	return "sig:" + message, nil
}

func binding() Binding {
	return Binding{Address: boundWallet, ChainID: 1, Vendor: wallet.VendorMetaMask}
}

func TestAuthenticateFallsBackToThirdDescriptor(t *testing.T) {
	descs := Descriptors(boundWallet, 1, wallet.VendorMetaMask)
	require.Len(t, descs, 4)

	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(nil, nil).Once()
	p.On("InitSiwe", mock.Anything, descs[0]).Return("msg-1", nil).Once()
	p.On("LoginWithSiwe", mock.Anything, descs[0], "msg-1", "sig:msg-1").Return(nil, errors.New("Invalid SIWE message")).Once()
	p.On("InitSiwe", mock.Anything, descs[1]).Return("msg-2", nil).Once()
	p.On("LoginWithSiwe", mock.Anything, descs[1], "msg-2", "sig:msg-2").Return(nil, errors.New("invalid siwe message for chain")).Once()
	p.On("InitSiwe", mock.Anything, descs[2]).Return("msg-3", nil).Once()
	p.On("LoginWithSiwe", mock.Anything, descs[2], "msg-3", "sig:msg-3").Return(&User{ID: "user-3"}, nil).Once()
	p.On("IdentityToken", mock.Anything).Return("id-tok", nil)
	p.On("AccessToken", mock.Anything).Return("access-tok", nil)

	a := NewAuthenticator(p)
	s, err := a.Authenticate(context.Background(), binding(), okSign)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Variant)
	assert.Equal(t, "user-3", s.UserID)
	assert.Equal(t, "id-tok", s.IdentityToken)
	assert.Equal(t, "access-tok", s.AccessToken)
	assert.Equal(t, StateAuthenticated, a.State())
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "InitSiwe", mock.Anything, descs[3])

	var inits []WalletDescriptor
	for _, c := range p.Calls {
		if c.Method == "InitSiwe" {
			inits = append(inits, c.Arguments.Get(1).(WalletDescriptor))
		}
	}
	assert.Equal(t, descs[:3], inits)
}

func TestAuthenticateStructuredCodeRetries(t *testing.T) {
	descs := Descriptors(boundWallet, 1, wallet.VendorMetaMask)
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(nil, nil).Once()
	p.On("InitSiwe", mock.Anything, descs[0]).Return("", &ProviderError{Code: CodeInvalidSiweSignature, Message: "bad"}).Once()
	p.On("InitSiwe", mock.Anything, descs[1]).Return("m", nil).Once()
	p.On("LoginWithSiwe", mock.Anything, descs[1], "m", "sig:m").Return(&User{ID: "u"}, nil).Once()
	p.On("IdentityToken", mock.Anything).Return("", errors.New("not ready"))
	p.On("AccessToken", mock.Anything).Return("access-tok", nil)

	s, err := NewAuthenticator(p).Authenticate(context.Background(), binding(), okSign)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Variant)
	assert.Empty(t, s.IdentityToken)
	assert.Equal(t, "access-tok", s.AccessToken)
}

func TestAuthenticateFatalErrorAbortsImmediately(t *testing.T) {
	descs := Descriptors(boundWallet, 1, wallet.VendorMetaMask)
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(nil, nil).Once()
	p.On("InitSiwe", mock.Anything, descs[0]).Return("", &ProviderError{Code: "app_disabled", Message: "app disabled"}).Once()

	a := NewAuthenticator(p)
	_, err := a.Authenticate(context.Background(), binding(), okSign)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSiweAuthFailed))
	assert.Contains(t, err.Error(), "app disabled")
	assert.Equal(t, StateFailed, a.State())
	p.AssertNumberOfCalls(t, "InitSiwe", 1)
}

func TestAuthenticateSigningFailureIsFatal(t *testing.T) {
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(nil, nil).Once()
	p.On("InitSiwe", mock.Anything, mock.Anything).Return("m", nil).Once()

	failSign := func(context.Context, string) (string, error) {
		return "", apperrors.New(apperrors.ErrSignatureFailed, "invalid signature request", nil)
	}
	_, err := NewAuthenticator(p).Authenticate(context.Background(), binding(), failSign)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureFailed))
	p.AssertNumberOfCalls(t, "InitSiwe", 1)
}

func TestAuthenticateAllDescriptorsRejected(t *testing.T) {
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(nil, nil).Once()
	p.On("InitSiwe", mock.Anything, mock.Anything).Return("m", nil)
	p.On("LoginWithSiwe", mock.Anything, mock.Anything, "m", "sig:m").Return(nil, errors.New("signature mismatch"))

	_, err := NewAuthenticator(p).Authenticate(context.Background(),
		Binding{Address: boundWallet, ChainID: 1, Vendor: wallet.VendorUnknown}, okSign)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSiweAuthFailed))
	assert.Contains(t, err.Error(), "signature mismatch")
	p.AssertNumberOfCalls(t, "LoginWithSiwe", 2)
}

func TestAuthenticateReusesLinkedSession(t *testing.T) {
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(&User{ID: "u1", LinkedWallets: []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1111"}}, nil)
	p.On("IdentityToken", mock.Anything).Return("id", nil)
	p.On("AccessToken", mock.Anything).Return("", nil)

	s, err := NewAuthenticator(p).Authenticate(context.Background(), binding(), okSign)
	require.NoError(t, err)
	assert.True(t, s.Reused)
	assert.Equal(t, "u1", s.UserID)
	p.AssertNotCalled(t, "InitSiwe", mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "Logout", mock.Anything)
}

func TestAuthenticateLogsOutOtherUserFirst(t *testing.T) {
	descs := Descriptors(boundWallet, 1, wallet.VendorMetaMask)
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(&User{ID: "other", LinkedWallets: []string{"0x00000000000000000000000000000000000000ff"}}, nil).Once()
	p.On("Logout", mock.Anything).Return(errors.New("already gone")).Once()
	p.On("InitSiwe", mock.Anything, descs[0]).Return("m", nil).Once()
	p.On("LoginWithSiwe", mock.Anything, descs[0], "m", "sig:m").Return(&User{ID: "me"}, nil).Once()
	p.On("IdentityToken", mock.Anything).Return("id", nil)
	p.On("AccessToken", mock.Anything).Return("acc", nil)

	s, err := NewAuthenticator(p).Authenticate(context.Background(), binding(), okSign)
	require.NoError(t, err)
	assert.Equal(t, "me", s.UserID)
	p.AssertExpectations(t)
}

func TestAuthenticateNoTokens(t *testing.T) {
	p := &mockProvider{}
	p.On("CurrentUser", mock.Anything).Return(nil, nil).Once()
	p.On("InitSiwe", mock.Anything, mock.Anything).Return("m", nil).Once()
	p.On("LoginWithSiwe", mock.Anything, mock.Anything, "m", "sig:m").Return(&User{ID: "u"}, nil).Once()
	p.On("IdentityToken", mock.Anything).Return("", errors.New("boom"))
	p.On("AccessToken", mock.Anything).Return("", nil)

	a := NewAuthenticator(p)
	_, err := a.Authenticate(context.Background(), binding(), okSign)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenRetrievalFailed))
	assert.Equal(t, StateFailed, a.State())
}

func TestDescriptorsDeduplicate(t *testing.T) {
	d := Descriptors(boundWallet, 11155111, wallet.VendorUnknown)
	require.Len(t, d, 2)
	assert.Equal(t, "eip155:11155111", d[0].ChainID)
	assert.Equal(t, "11155111", d[1].ChainID)

	d = Descriptors(boundWallet, 1, wallet.VendorCoinbase)
	require.Len(t, d, 4)
	assert.Equal(t, "coinbase_wallet", d[0].WalletClientType)
	assert.Equal(t, "unknown", d[2].WalletClientType)
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, retryable(&ProviderError{Code: CodeInvalidSiweMessage}))
	assert.False(t, retryable(&ProviderError{Code: "rate_limited", Message: "invalid siwe message"}))
	assert.True(t, retryable(errors.New("Invalid SIWE message")))
	assert.False(t, retryable(errors.New("network unreachable")))
	assert.False(t, retryable(nil))
}
