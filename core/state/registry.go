package state

import (
	"fmt"

	"nftmarket/native/registry"
)

const registryTokenPrefix = "registry/token/"

// RegistryTokenKey returns the state key of the token record for assetID.
func RegistryTokenKey(assetID string) []byte {
	return []byte(registryTokenPrefix + assetID)
}

// RegistryToken loads the token record for assetID.
func (m *Manager) RegistryToken(assetID string) (*registry.Token, bool, error) {
	var token registry.Token
	ok, err := m.KVGet(RegistryTokenKey(assetID), &token)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &token, true, nil
}

// RegistryPutToken stores the token record.
func (m *Manager) RegistryPutToken(token *registry.Token) error {
	if token == nil {
		return fmt.Errorf("registry: nil token")
	}
	return m.KVPut(RegistryTokenKey(token.ID), token)
}

var registryMinterKey = []byte("registry/minter")

// RegistryMinter loads the minting authority.
func (m *Manager) RegistryMinter() ([20]byte, bool, error) {
	var minter [20]byte
	ok, err := m.KVGet(registryMinterKey, &minter)
	if err != nil || !ok {
		return [20]byte{}, ok, err
	}
	return minter, true, nil
}

// RegistryPutMinter stores the minting authority.
func (m *Manager) RegistryPutMinter(minter [20]byte) error {
	return m.KVPut(registryMinterKey, minter)
}
