//go:build !csecp
// +build !csecp

package secp256k1suite

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/btcsuite/btcd/btcec"
)

// halfN is half the secp256k1 group order. Event signatures with S above it
// are rejected so an event has exactly one valid encoding.
var halfN = new(big.Int).Rsh(btcec.S256().N, 1)

// NewCipherSuite returns the CipherSuite selected by the package build tags (csecp present or not)
func NewCipherSuite() hashgraph.CipherSuite {
	return &BTCECSuite{}
}

// BTCECSuite is the pure go suite. Signatures are [R || S || V] with V the
// recovery id (0 or 1), the layout libsecp256k1 uses. btcec's compact format
// puts V+27 first instead, fromCompact and toCompact convert.
type BTCECSuite struct{}

func (c *BTCECSuite) Curve() elliptic.Curve {
	return btcec.S256()
}

func (c *BTCECSuite) Keccak256(image ...[]byte) []byte {
	return keccak256(image...)
}

func (c *BTCECSuite) Sign(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {

	if len(digest) != 32 {
		return nil, fmt.Errorf("bad digest len %d, require 32", len(digest))
	}

	sig, err := btcec.SignCompact(btcec.S256(), (*btcec.PrivateKey)(key), digest, false)
	if err != nil {
		return nil, err
	}
	return fromCompact(sig), nil
}

// VerifySignature checks a 64 byte [R || S] signature
func (c *BTCECSuite) VerifySignature(pub, digest, sig []byte) bool {
	if len(digest) != 32 || len(sig) != 64 {
		return false
	}

	// btcec accepts high S
	s := new(big.Int).SetBytes(sig[32:])
	if s.Cmp(halfN) > 0 {
		return false
	}

	btpub, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return false
	}
	btsig := &btcec.Signature{R: new(big.Int).SetBytes(sig[:32]), S: s}
	return btsig.Verify(digest, btpub)
}

// Ecrecover returns the uncompressed public key that produced sig
func (c *BTCECSuite) Ecrecover(digest, sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("bad sig len %d, require 65", len(sig))
	}

	btpub, _, err := btcec.RecoverCompact(btcec.S256(), toCompact(sig), digest)
	if err != nil {
		return nil, err
	}
	return btpub.SerializeUncompressed(), nil
}

// toCompact converts [R || S || V] to btcec's [V+27 || R || S]
func toCompact(rsv []byte) []byte {
	vrs := make([]byte, 65)
	vrs[0] = rsv[64] + 27
	copy(vrs[1:], rsv[:64])
	return vrs
}

// fromCompact converts, in place, btcec's [V+27 || R || S] to [R || S || V]
func fromCompact(vrs []byte) []byte {
	v := vrs[0] - 27
	copy(vrs, vrs[1:])
	vrs[64] = v
	return vrs
}
