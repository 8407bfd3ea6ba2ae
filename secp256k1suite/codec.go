package secp256k1suite

import (
	"crypto/ecdsa"
	"crypto/rand"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/ethereum/go-ethereum/rlp"
)

// BytesCodec is the rlp encoding used for events and snapshots
type BytesCodec struct{}

func (bc *BytesCodec) EncodeToBytes(val interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(val)
}

func (bc *BytesCodec) DecodeBytes(b []byte, val interface{}) error {
	return rlp.DecodeBytes(b, val)
}

// NewCodec returns the CipherCodec for the build selected cipher suite and rlp
func NewCodec() *hashgraph.CipherCodec {
	return hashgraph.NewCodec(NewCipherSuite(), &BytesCodec{})
}

// GenerateKey creates a new secp256k1 private key
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(NewCipherSuite().Curve(), rand.Reader)
}
