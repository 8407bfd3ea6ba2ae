package secp256k1suite

import "golang.org/x/crypto/sha3"

// keccak256 is the legacy (pre padding change) sha3 used for event hashes and
// node ids by both suites
func keccak256(image ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, b := range image {
		hasher.Write(b)
	}
	return hasher.Sum(nil)
}
