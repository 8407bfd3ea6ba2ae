package hashgraph

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"math/big"
)

// Hash is a hash. We always work with Keccak256, same as ethereum. Event
// hashes and node ids are both Hash values.
type Hash [32]byte

// CipherSuite exists principally to avoid licensing issues and circular
// dependencies on go-ethereum
// Notice: This is assumed to be EC secp256k1 + legacy sha3
type CipherSuite interface {
	Curve() elliptic.Curve

	// Keccak256 returns a digest suitable for Sign. (draft sha3 before the padding was added)
	Keccak256(b ...[]byte) []byte

	// Sign is given a digest to sign.
	Sign(digest []byte, key *ecdsa.PrivateKey) ([]byte, error)

	// VerifySignature verifies
	VerifySignature(pub, digest, sig []byte) bool

	// Ecrecover a public key from a recoverable signature.
	Ecrecover(digest, sig []byte) ([]byte, error)
}

// IsZero is true for the zero hash, which we use for "no parent"
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Hex gets the hex string of the Hash
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// HexShort is the first 4 bytes in hex, good enough for logs
func (h Hash) HexShort() string {
	return hex.EncodeToString(h[:4])
}

// Less orders hashes as big endian unsigned integers
func (h Hash) Less(o Hash) bool {
	return bytes.Compare(h[:], o[:]) < 0
}

// PubMarshal converts public ecdsa key into the uncompressed form specified in section 4.3.6 of ANSI X9.62
func PubMarshal(c CipherSuite, pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(c.Curve(), pub.X, pub.Y)
}

// Keccak256Hash hashes a variable number of byte slices and returns a Hash
func Keccak256Hash(c CipherSuite, b ...[]byte) Hash {
	h := Hash{}
	copy(h[:], c.Keccak256(b...))
	return h
}

// VerifyNodeSig verifies if sig over digest was produced using the private key
// corresponding to nodeID. We EC recover the public key from the digest and the
// signature and then compare the hash of the recovered public key with the node
// ID. As node identities are the hash of the node's public key, This is
// equivelant to verification using the public key.
func VerifyNodeSig(c CipherSuite, nodeID Hash, digest, sig []byte) bool {

	recoveredPub, err := c.Ecrecover(digest, sig)
	if err != nil {
		return false
	}

	if !bytes.Equal(nodeID[:], c.Keccak256(recoveredPub[1:65])) {
		return false
	}

	return true
}

// RecoverPublic recovers the ecdsa public key that produced sig over h
func RecoverPublic(c CipherSuite, h []byte, sig []byte) (*ecdsa.PublicKey, error) {

	// Recover the public signing key bytes in uncompressed encoded form
	p, err := c.Ecrecover(h, sig)
	if err != nil {
		return nil, err
	}
	return BytesToPublic(c, p)
}

// BytesToPublic re-builds the public key from its uncompressed encoding.
//
// per 2.3.4 sec1-v2 for uncompresed representation "otherwise the leftmost
// octet of the octetstring is removed"
func BytesToPublic(c CipherSuite, b []byte) (*ecdsa.PublicKey, error) {

	if len(b) != 65 {
		return nil, errors.New("pub must be 65 bytes")
	}

	pub := &ecdsa.PublicKey{Curve: c.Curve(), X: new(big.Int), Y: new(big.Int)}
	pub.X.SetBytes(b[1 : 1+32])
	pub.Y.SetBytes(b[1+32 : 1+64])
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("invalid secp256k1 curve point")
	}
	return pub, nil
}
