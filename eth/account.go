package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateKey returns a fresh secp256k1 key drawn from crypto/rand.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateAccount creates an account around a freshly generated key.
func GenerateAccount(chainID int64) (*Account, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return accountFromECDSA(key, chainID), nil
}

// AccountFromKey derives an account from a hex-encoded private key, with or
// without the 0x prefix.
func AccountFromKey(hexKey string, chainID int64) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if len(hexKey) != 64 {
		return nil, newErrorf(KindInvalidKeyFormat, "account", "expected 32-byte hex key, got %d hex chars", len(hexKey))
	}
	// HexToECDSA rejects bad hex, zero and scalars >= the curve order.
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, &Error{Kind: KindInvalidKeyFormat, Op: "account", Err: err}
	}
	return accountFromECDSA(key, chainID), nil
}

func accountFromECDSA(key *ecdsa.PrivateKey, chainID int64) *Account {
	pub := key.Public().(*ecdsa.PublicKey)
	return &Account{
		Address:    crypto.PubkeyToAddress(*pub),
		PublicKey:  pub,
		ChainId:    chainID,
		PrivateKey: key,
	}
}

// KeyHex returns the 0x-prefixed private key for the session store.
func (a *Account) KeyHex() string {
	if a == nil || a.PrivateKey == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(a.PrivateKey))
}

// CanSign reports whether the account holds a private key.
func (a *Account) CanSign() bool {
	return a != nil && a.PrivateKey != nil && a.PrivateKey.D != nil
}

// Wipe zeroes the private scalar and drops the key. The account keeps its
// address and can still be used for reads.
func (a *Account) Wipe() {
	if a == nil || a.PrivateKey == nil {
		return
	}
	if a.PrivateKey.D != nil {
		a.PrivateKey.D.SetInt64(0)
	}
	a.PrivateKey = nil
}

// validate mirrors the checks done before a client is allowed to sign.
func (a *Account) validate(chainID int64) error {
	if a == nil {
		return newErrorf(KindInvalidKeyFormat, "account", "account is nil")
	}
	if !a.CanSign() {
		return newErrorf(KindInvalidKeyFormat, "account", "account private key is nil")
	}
	if a.Address != crypto.PubkeyToAddress(a.PrivateKey.PublicKey) {
		return newErrorf(KindInvalidKeyFormat, "account", "address %s does not match private key", a.Address.Hex())
	}
	if a.ChainId != 0 && a.ChainId != chainID {
		return newErrorf(KindInvalidRequest, "account", "account chain ID %d, endpoint chain ID %d", a.ChainId, chainID)
	}
	return nil
}
