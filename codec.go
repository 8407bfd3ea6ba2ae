package hashgraph

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
)

var (
	ErrDecodeSignedEventFailed = errors.New("decoding signed event failed")
)

// General serialisation support for events and consensus snapshots. The
// encoding is provided by the host (rlp in practice) so this package does not
// depend on go-ethereum.

type BytesEncoder interface {
	EncodeToBytes(val interface{}) ([]byte, error)
}
type BytesDecoder interface {
	DecodeBytes(b []byte, val interface{}) error
}

type BytesCodec interface {
	BytesEncoder
	BytesDecoder
}

// CipherCodec combines the cipher suite with the byte level encoding.
type CipherCodec struct {
	c  CipherSuite
	ed BytesCodec
}

func NewCodec(c CipherSuite, ed BytesCodec) *CipherCodec {
	return &CipherCodec{c: c, ed: ed}
}

func (codec *CipherCodec) EncodeToBytes(val interface{}) ([]byte, error) {
	return codec.ed.EncodeToBytes(val)
}

func (codec *CipherCodec) DecodeBytes(b []byte, val interface{}) error {
	return codec.ed.DecodeBytes(b, val)
}

func (codec *CipherCodec) Keccak256Hash(b ...[]byte) Hash {
	return Keccak256Hash(codec.c, b...)
}

func (codec *CipherCodec) NodeIDFromPub(pub *ecdsa.PublicKey) Hash {
	return NodeIDFromPub(codec.c, pub)
}

// HashEvent is the Keccak256 of the encoded event. This is the identity of the
// event everywhere in consensus.
func (codec *CipherCodec) HashEvent(e *Event) (Hash, error) {
	b, err := codec.EncodeToBytes(e)
	if err != nil {
		return Hash{}, err
	}
	return codec.Keccak256Hash(b), nil
}

// EncodeSignEvent signs the event hash with k and encodes the SignedEvent
// envelope for gossip. Pass a nil key to produce an unsigned envelope (tests
// and simulations that mark signatures valid out of band).
func (codec *CipherCodec) EncodeSignEvent(e *Event, k *ecdsa.PrivateKey) (Hash, []byte, error) {

	h, err := codec.HashEvent(e)
	if err != nil {
		return Hash{}, nil, err
	}

	se := &SignedEvent{Event: *e}
	if k != nil {
		sig, err := codec.c.Sign(h[:], k)
		if err != nil {
			return Hash{}, nil, err
		}
		copy(se.Sig[:], sig)
	}

	b, err := codec.EncodeToBytes(se)
	if err != nil {
		return Hash{}, nil, err
	}
	return h, b, nil
}

// DecodeSignedEvent decodes the gossip envelope and returns the event hash. It
// does not verify the signature, see VerifySignedEvent.
func (codec *CipherCodec) DecodeSignedEvent(raw []byte) (*SignedEvent, Hash, error) {

	se := &SignedEvent{}
	if err := codec.DecodeBytes(raw, se); err != nil {
		return nil, Hash{}, fmt.Errorf("%v: %w", err, ErrDecodeSignedEventFailed)
	}
	h, err := codec.HashEvent(&se.Event)
	if err != nil {
		return nil, Hash{}, err
	}
	return se, h, nil
}

// VerifySignedEvent checks that the signature on se was produced by the
// creator of the event. Transports call this to fill in
// RawEvent.SignatureValid.
func (codec *CipherCodec) VerifySignedEvent(se *SignedEvent, h Hash) bool {
	return VerifyNodeSig(codec.c, se.Event.Creator, h[:], se.Sig[:])
}
