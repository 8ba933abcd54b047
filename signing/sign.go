package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/vitalvas/docsign/digest"
	"github.com/vitalvas/docsign/keys"
)

// Sign returns the signature of document under priv.
func Sign(document []byte, priv *rsa.PrivateKey) (Signature, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: document", ErrEmptyInput)
	}

	if err := checkPrivate(priv); err != nil {
		return nil, err
	}

	return signDigest(digest.Sum(document), priv)
}

// SignReader returns the signature of everything read from r under priv.
func SignReader(r io.Reader, priv *rsa.PrivateKey) (Signature, error) {
	if err := checkPrivate(priv); err != nil {
		return nil, err
	}

	cr := &countingReader{r: r}

	d, err := digest.SumReader(cr)
	if err != nil {
		return nil, fmt.Errorf("signing: read document: %w", err)
	}

	if cr.n == 0 {
		return nil, fmt.Errorf("%w: document", ErrEmptyInput)
	}

	return signDigest(d, priv)
}

// SignText decodes a PEM private key and signs document with it. A key that
// cannot be decoded yields an error matching both ErrInvalidKey and the
// keys package error describing the problem.
func SignText(document []byte, privateKeyText string) (Signature, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: document", ErrEmptyInput)
	}

	pair, err := keys.DecodePrivate(privateKeyText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	return Sign(document, pair.Private())
}

// Signer signs documents with a fixed key pair.
type Signer struct {
	pair *keys.KeyPair
}

// NewSigner returns a Signer bound to pair.
func NewSigner(pair *keys.KeyPair) (*Signer, error) {
	if pair == nil {
		return nil, fmt.Errorf("%w: key pair must not be nil", ErrInvalidKey)
	}

	if err := checkPrivate(pair.Private()); err != nil {
		return nil, err
	}

	return &Signer{pair: pair}, nil
}

// Sign returns the signature of document. It fails with ErrInvalidKey once
// the bound key pair has been destroyed.
func (s *Signer) Sign(document []byte) (Signature, error) {
	return Sign(document, s.pair.Private())
}

// SignReader returns the signature of everything read from r.
func (s *Signer) SignReader(r io.Reader) (Signature, error) {
	return SignReader(r, s.pair.Private())
}

// KeyFingerprint returns the fingerprint of the bound public key.
func (s *Signer) KeyFingerprint() string {
	return keys.Fingerprint(s.pair.Public())
}

func signDigest(d digest.Digest, priv *rsa.PrivateKey) (Signature, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, digest.Hash, d[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return Signature(sig), nil
}

func checkPrivate(priv *rsa.PrivateKey) error {
	if priv == nil || priv.N == nil {
		return fmt.Errorf("%w: rsa private key must not be nil", ErrInvalidKey)
	}

	if bits := priv.N.BitLen(); !keys.IsSupportedSize(bits) {
		return fmt.Errorf("%w: rsa modulus of %d bits", ErrInvalidKey, bits)
	}

	if err := priv.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}
