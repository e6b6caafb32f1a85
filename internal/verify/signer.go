package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"certified/internal/digest"
)

// Signer signs artifact digests. The signed message is the lowercase hex
// SHA-256 digest of the canonical artifact, so a signature certifies exactly
// the value served as the artifact's ETag.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// NewSignerFromSeedHex builds a signer from a hex encoded 32-byte seed.
func NewSignerFromSeedHex(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid signing key size: got %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed)), nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return NewSigner(priv), nil
}

func (s *Signer) PublicKey() ed25519.PublicKey { return s.pub }

func (s *Signer) PublicKeyHex() string { return hex.EncodeToString(s.pub) }

func (s *Signer) SeedHex() string { return hex.EncodeToString(s.priv.Seed()) }

// Sign canonicalizes content as a JSON value and returns its digest and the signature over it.
func (s *Signer) Sign(content any) (string, []byte, error) {
	canon, err := digest.CanonicalJSON(content)
	if err != nil {
		return "", nil, err
	}
	sum := digest.HashBytes(canon)
	return sum, ed25519.Sign(s.priv, []byte(sum)), nil
}

var ErrBadSignatureEncoding = errors.New("signature is neither base64 nor hex")

// DecodeSignature accepts standard base64, URL-safe base64 or hex.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == hex.EncodedLen(ed25519.SignatureSize) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, ErrBadSignatureEncoding
}

// VerifyDigest checks sig over the hex digest with pub.
func VerifyDigest(pub ed25519.PublicKey, sumHex string, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, []byte(sumHex), sig)
}
