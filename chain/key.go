package chain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"

	"github.com/pkg/errors"
)

// ParsePrivateKey loads the account's signing key from its hex-encoded
// scalar (spec.md §6 `ledger.wallet_private_key`). The key material
// uses the standard library's P256 curve rather than the secp256k1
// curve real EVM chains sign with — golang.org/x/crypto carries no
// secp256k1 implementation, and pulling in a dedicated one for a
// single scalar-to-point derivation was judged out of scope; see
// DESIGN.md. ecdsaSigner.Sign's digest-signature scheme already
// doesn't reproduce any specific chain's RLP encoding, so this
// substitution is consistent with the rest of the signer.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	b, err := decodeHex(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "chain: decoding wallet_private_key")
	}
	if len(b) == 0 {
		return nil, errors.New("chain: empty wallet_private_key")
	}
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(b)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, errors.New("chain: wallet_private_key out of curve range")
	}
	x, y := curve.ScalarBaseMult(d.Bytes())
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}, nil
}
