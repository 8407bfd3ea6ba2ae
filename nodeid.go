package hashgraph

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
)

const (
	// number of bits in a big.Word
	wordBits = 32 << (uint64(^big.Word(0)) >> 63)
	// number of bytes in a big.Word
	wordBytes = wordBits / 8
)

// ReadBits encodes the absolute value of bigint as big-endian bytes, filling
// buf from the right. borrowed
func ReadBits(bigint *big.Int, buf []byte) {
	i := len(buf)
	for _, d := range bigint.Bits() {
		for j := 0; j < wordBytes && i > 0; j++ {
			i--
			buf[i] = byte(d)
			d >>= 8
		}
	}
}

// NodeIDFromPub gets a node id from an ecdsa pub key. NodeID is Keccak256
// (Pub.X || Pub.Y ). Every event creator is identified this way and the weight
// table is keyed by it.
func NodeIDFromPub(c CipherSuite, pub *ecdsa.PublicKey) Hash {
	buf := make([]byte, 64)
	ReadBits(pub.X, buf[:32])
	ReadBits(pub.Y, buf[32:])
	return Keccak256Hash(c, buf)
}

// NodeIDFromPubBytes gets a node id from the bytes of an uncompressed ecdsa
// public key
func NodeIDFromPubBytes(c CipherSuite, pub []byte) (Hash, error) {
	if len(pub) != 65 {
		return Hash{}, fmt.Errorf("raw pubkey must be 65 bytes long")
	}
	return Keccak256Hash(c, pub[1:]), nil
}

// SignerNodeID recovers the node id of the key that produced sig over h
func (h Hash) SignerNodeID(c CipherSuite, sig []byte) (Hash, error) {
	pub, err := RecoverPublic(c, h[:], sig)
	if err != nil {
		return Hash{}, err
	}
	return NodeIDFromPub(c, pub), nil
}
