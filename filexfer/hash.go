package filexfer

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hash creates the digest function used to check file integrity. Both ends of
// a transfer must use the same function. All registered functions produce
// 256-bit digests.
type Hash func() hash.Hash

// DefaultHash is SHA-256.
const DefaultHash = "sha256"

var hashes = map[string]Hash{
	"sha256":      sha256.New,
	"sha3-256":    sha3.New256,
	"blake2b-256": newBlake2b256,
}

func newBlake2b256() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only fails for keys longer than 64 bytes.
		panic(err)
	}
	return h
}

// LookupHash returns the hash function registered under name. An empty name
// selects DefaultHash.
func LookupHash(name string) (Hash, error) {
	if name == "" {
		name = DefaultHash
	}
	h, ok := hashes[name]
	if !ok {
		return nil, fmt.Errorf("unknown hash function %q (available: %v)", name, HashNames())
	}
	return h, nil
}

// HashNames returns the names of all registered hash functions.
func HashNames() []string {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
