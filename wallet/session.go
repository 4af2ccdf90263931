package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/patrickcheng2025-art/s8/eth"
)

// Session is the explicit per-user state passed through every command.
// The zero value has no account.
type Session struct {
	Account *eth.Account
}

func (s Session) HasAccount() bool {
	return s.Account != nil
}

func (s Session) CanSign() bool {
	return s.Account.CanSign()
}

// LoadSession restores the saved wallet, if any. A missing wallet yields an
// empty session and no error.
func LoadSession(store Store, chainID int64) (Session, error) {
	rec, err := store.Load()
	if errors.Is(err, ErrNoWallet) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}
	acc, err := eth.AccountFromKey(rec.PrivateKey, chainID)
	if err != nil {
		return Session{}, err
	}
	if rec.Address != "" && common.HexToAddress(rec.Address) != acc.Address {
		return Session{}, fmt.Errorf("saved address %s does not match key (%s)", rec.Address, acc.Address.Hex())
	}
	return Session{Account: acc}, nil
}

func recordOf(acc *eth.Account) *Record {
	return &Record{PrivateKey: acc.KeyHex(), Address: acc.Address.Hex()}
}

// maskKey keeps only enough of the key to recognise it.
func maskKey(hexKey string) string {
	if len(hexKey) <= 10 {
		return "****"
	}
	return hexKey[:6] + "..." + hexKey[len(hexKey)-4:]
}
