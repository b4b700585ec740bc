package chain

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// Signer signs transaction payloads for submission. Injected into the
// Client so the broadcaster never handles key material directly
// (SPEC_FULL.md §4.2 — "sign (via injected signer)").
type Signer interface {
	Address() Address
	Sign(to Address, data []byte, nonce uint64, gasFeeCapWei, gasTipCapWei string, gasLimit uint64) (*SignedTx, error)
}

// ecdsaSigner is the default Signer: it owns one ECDSA private key loaded
// from config (a P256 key, as ParsePrivateKey derives it) and produces a
// keccak256 digest signature over the
// transaction's fields. It does not attempt to reproduce a specific
// chain's RLP transaction encoding — SignedTx.Raw is provider-specific,
// and a real deployment's Provider implementation is responsible for
// interpreting it (or for doing its own signing against the fields
// above).
type ecdsaSigner struct {
	priv *ecdsa.PrivateKey
	addr Address
}

// NewECDSASigner derives a Signer from a private key and the address it
// controls (both already parsed from config; SPEC_FULL.md §6.5).
func NewECDSASigner(priv *ecdsa.PrivateKey, addr Address) Signer {
	return &ecdsaSigner{priv: priv, addr: addr}
}

func (s *ecdsaSigner) Address() Address { return s.addr }

func (s *ecdsaSigner) Sign(to Address, data []byte, nonce uint64, gasFeeCapWei, gasTipCapWei string, gasLimit uint64) (*SignedTx, error) {
	if s.priv == nil {
		return nil, errors.New("chain: signer has no private key loaded")
	}
	digest := txDigest(to, data, nonce, gasFeeCapWei, gasTipCapWei, gasLimit)
	r, sVal, err := ecdsa.Sign(rand.Reader, s.priv, digest)
	if err != nil {
		return nil, errors.Wrap(err, "chain: signing transaction")
	}
	raw := append(leftPad32(r), leftPad32(sVal)...)
	return &SignedTx{
		To:           to,
		Data:         data,
		Nonce:        nonce,
		GasFeeCapWei: gasFeeCapWei,
		GasTipCapWei: gasTipCapWei,
		GasLimit:     gasLimit,
		Raw:          raw,
	}, nil
}

func txDigest(to Address, data []byte, nonce uint64, feeCap, tipCap string, gasLimit uint64) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(to[:])
	h.Write(data)
	h.Write(word(itob(nonce)))
	h.Write([]byte(feeCap))
	h.Write([]byte(tipCap))
	h.Write(word(itob(gasLimit)))
	return h.Sum(nil)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func leftPad32(v *big.Int) []byte { return word(v.Bytes()) }
