package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"nftmarket/storage"
)

// Trie is the Merkle state the market commits asks, bids, tokens and custody
// balances into. The node mutates a Copy per transition and commits it once
// every engine call has succeeded, so a failed transition leaves the live trie
// untouched.
//
// Callers hash keys with keccak256 first. Not safe for concurrent use.
type Trie struct {
	trieDB *triedb.Database
	trie   *gethtrie.Trie
	root   common.Hash
}

// NewTrie opens the state at root, or the empty state when root is empty.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{trieDB: trieDB, trie: underlying, root: rootHash}, nil
}

// Get returns nil, nil for an absent key.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Delete is a no-op for an absent key.
func (t *Trie) Delete(key []byte) error {
	return t.trie.Delete(key)
}

// Hash includes uncommitted writes; Root does not.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

func (t *Trie) Root() common.Hash {
	return t.root
}

// Copy stages a transition. Writes to the copy stay invisible here until the
// node commits the copy and adopts it as the live trie.
func (t *Trie) Copy() *Trie {
	return &Trie{trieDB: t.trieDB, trie: t.trie.Copy(), root: t.root}
}

// Commit flushes dirty nodes for the given height to disk and reopens the
// trie at the resulting root.
func (t *Trie) Commit(parent common.Hash, height uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, height, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	reopened, err := gethtrie.New(gethtrie.TrieID(newRoot), t.trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	t.trie, t.root = reopened, newRoot
	return newRoot, nil
}
