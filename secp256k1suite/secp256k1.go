//go:build csecp
// +build csecp

package secp256k1suite

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/ethereum/go-ethereum/crypto/secp256k1"
)

// NewCipherSuite returns the CipherSuite selected by the package build tags (csecp present or not)
func NewCipherSuite() hashgraph.CipherSuite {
	return &LibSecp256k1Suite{}
}

// LibSecp256k1Suite uses libsecp256k1 through cgo. Its signature layout,
// [R || S || V], is the one both suites use.
type LibSecp256k1Suite struct{}

func (c *LibSecp256k1Suite) Curve() elliptic.Curve {
	return secp256k1.S256()
}

func (c *LibSecp256k1Suite) Keccak256(image ...[]byte) []byte {
	return keccak256(image...)
}

func (c *LibSecp256k1Suite) Sign(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {

	if len(digest) != 32 {
		return nil, fmt.Errorf("bad digest len %d, require 32", len(digest))
	}

	// libsecp256k1 wants the private scalar as exactly 32 big endian bytes
	d := make([]byte, key.Params().BitSize/8)
	hashgraph.ReadBits(key.D, d)

	return secp256k1.Sign(digest, d)
}

// VerifySignature checks a 64 byte [R || S] signature. libsecp256k1 rejects
// high S itself.
func (c *LibSecp256k1Suite) VerifySignature(pub, digest, sig []byte) bool {
	return secp256k1.VerifySignature(pub, digest, sig)
}

func (c *LibSecp256k1Suite) Ecrecover(digest, sig []byte) ([]byte, error) {
	return secp256k1.RecoverPubkey(digest, sig)
}
