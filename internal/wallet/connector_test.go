package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaetesh/medichain/internal/provider"
)

type accountProvider struct {
	authorized []string // eth_accounts
	requestErr error    // eth_requestAccounts failure
	requested  []string // eth_requestAccounts result
	chainID    string

	requestCalls int
}

func (f *accountProvider) RequestAccounts(context.Context) ([]string, error) {
	f.requestCalls++
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.requested, nil
}

func (f *accountProvider) Accounts(context.Context) ([]string, error) {
	return f.authorized, nil
}

func (f *accountProvider) ChainID(context.Context) (string, error) {
	return f.chainID, nil
}

func (f *accountProvider) SwitchChain(context.Context, string) error { return nil }
func (f *accountProvider) AddChain(context.Context, provider.AddChainParams) error {
	return nil
}
func (f *accountProvider) GasPrice(context.Context) (*big.Int, error) { return nil, nil }
func (f *accountProvider) Balance(context.Context, common.Address) (*big.Int, error) {
	return nil, nil
}
func (f *accountProvider) SendTransaction(context.Context, provider.TxParams) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *accountProvider) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}

type recordingRegistrar struct {
	addresses []string
	err       error
}

func (r *recordingRegistrar) RegisterWallet(_ context.Context, address string) error {
	r.addresses = append(r.addresses, address)
	return r.err
}

const mixedCaseAddr = "0xAbCd1234567890abcdef1234567890ABCDEF1234"

func TestDetect(t *testing.T) {
	assert.False(t, NewConnector(nil).Detect())
	assert.True(t, NewConnector(&accountProvider{}).Detect())
}

func TestRestore_NoProvider(t *testing.T) {
	_, err := NewConnector(nil).Restore(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRestore_NotAuthorizedIsNotAnError(t *testing.T) {
	c := NewConnector(&accountProvider{chainID: "0x13882"})

	session, err := c.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, session.Connected)
	assert.Empty(t, session.Address)
}

func TestRestore_ExistingAuthorization(t *testing.T) {
	p := &accountProvider{
		authorized: []string{mixedCaseAddr},
		chainID:    "0x13882",
	}
	c := NewConnector(p)

	session, err := c.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Connected)
	assert.Equal(t, "0xabcd1234567890abcdef1234567890abcdef1234", session.Address)
	assert.Equal(t, "0x13882", session.ActiveChainID)

	// No prompt was shown.
	assert.Equal(t, 0, p.requestCalls)
}

func TestConnect_Success(t *testing.T) {
	p := &accountProvider{
		requested: []string{mixedCaseAddr},
		chainID:   "0x13882",
	}
	reg := &recordingRegistrar{}
	c := NewConnector(p, WithRegistrar(reg))

	session, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Connected)
	assert.Equal(t, "0xabcd1234567890abcdef1234567890abcdef1234", session.Address)
	assert.Equal(t, 1, p.requestCalls)

	// Backend registration got the normalized address.
	assert.Equal(t, []string{"0xabcd1234567890abcdef1234567890abcdef1234"}, reg.addresses)

	assert.Equal(t, session, c.Session())
}

func TestConnect_UserRejected(t *testing.T) {
	p := &accountProvider{
		requestErr: &provider.RPCError{Code: provider.CodeUserRejected, Message: "denied"},
	}
	c := NewConnector(p)

	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestConnect_NoAccountsAuthorized(t *testing.T) {
	c := NewConnector(&accountProvider{chainID: "0x13882"})

	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestConnect_RegistrarFailureIsSwallowed(t *testing.T) {
	p := &accountProvider{
		requested: []string{mixedCaseAddr},
		chainID:   "0x13882",
	}
	reg := &recordingRegistrar{err: errors.New("backend down")}
	c := NewConnector(p, WithRegistrar(reg))

	session, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Connected)
	assert.Len(t, reg.addresses, 1)
}

func TestRefresh_DetectsRevocation(t *testing.T) {
	p := &accountProvider{
		authorized: []string{mixedCaseAddr},
		chainID:    "0x13882",
	}
	c := NewConnector(p)

	session, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, session.Connected)

	// Access revoked in the wallet's own UI.
	p.authorized = nil

	session, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, session.Connected)
	assert.Empty(t, session.Address)
	assert.False(t, c.Session().Connected)
}

func TestHTTPRegistrar(t *testing.T) {
	var gotBody map[string]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewHTTPRegistrar(srv.URL, "token-1")
	err := reg.RegisterWallet(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, map[string]string{"walletAddress": "0xabc"}, gotBody)
}

func TestHTTPRegistrar_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPRegistrar(srv.URL, "").RegisterWallet(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestRefresh_TracksAccountSwitch(t *testing.T) {
	p := &accountProvider{
		authorized: []string{mixedCaseAddr},
		chainID:    "0x13882",
	}
	c := NewConnector(p)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	p.authorized = []string{"0x1111111111111111111111111111111111111111"}

	session, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", session.Address)
}
