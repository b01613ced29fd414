package state

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

const custodyBalancePrefix = "custody/balance/"

// CustodyBalanceKey returns the state key of addr's balance in denom.
func CustodyBalanceKey(denom string, addr [20]byte) []byte {
	return []byte(custodyBalancePrefix + denom + "/" + hex.EncodeToString(addr[:]))
}

// CustodyBalance returns addr's balance in denom, zero when unset.
func (m *Manager) CustodyBalance(denom string, addr [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(CustodyBalanceKey(denom, addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// CustodySetBalance overwrites addr's balance. A zero balance deletes the key
// so drained accounts leave no trace in the state root.
func (m *Manager) CustodySetBalance(denom string, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(CustodyBalanceKey(denom, addr))
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("custody: negative balance for %s", denom)
	}
	return m.KVPut(CustodyBalanceKey(denom, addr), amount)
}
