package keys

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
)

// PEM block types.
const (
	BlockPublicKey           = "PUBLIC KEY"
	BlockPrivateKey          = "PRIVATE KEY"
	BlockRSAPublicKey        = "RSA PUBLIC KEY"
	BlockRSAPrivateKey       = "RSA PRIVATE KEY"
	BlockEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
)

// EncodePublic returns the public key of k as a PEM "PUBLIC KEY" block.
func EncodePublic(k *KeyPair) string {
	pub := k.Public()
	if pub == nil {
		return ""
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  BlockPublicKey,
		Bytes: marshalPublic(pub),
	}))
}

// EncodePrivate returns the private key of k as an unencrypted PKCS#8 PEM
// "PRIVATE KEY" block.
func EncodePrivate(k *KeyPair) string {
	priv := k.Private()
	if priv == nil {
		return ""
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		// Unreachable for RSA keys.
		return ""
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  BlockPrivateKey,
		Bytes: der,
	}))
}

// DecodePublic parses a PEM encoded RSA public key.
func DecodePublic(text string) (*rsa.PublicKey, error) {
	block, err := decodeBlock(text)
	if err != nil {
		return nil, err
	}

	var pub *rsa.PublicKey

	switch block.Type {
	case BlockPublicKey:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}

		rsaPub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an rsa public key", ErrUnsupportedKey, parsed)
		}

		pub = rsaPub
	case BlockRSAPublicKey:
		parsed, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}

		pub = parsed
	default:
		return nil, fmt.Errorf("%w: expected public key block, got %q", ErrMalformedKey, block.Type)
	}

	if bits := pub.N.BitLen(); !IsSupportedSize(bits) {
		return nil, fmt.Errorf("%w: rsa modulus of %d bits", ErrUnsupportedKey, bits)
	}

	return pub, nil
}

// DecodePrivate parses a PEM encoded RSA private key and returns it as a
// KeyPair.
func DecodePrivate(text string) (*KeyPair, error) {
	block, err := decodeBlock(text)
	if err != nil {
		return nil, err
	}

	var priv *rsa.PrivateKey

	switch block.Type {
	case BlockPrivateKey:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}

		rsaPriv, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an rsa private key", ErrUnsupportedKey, parsed)
		}

		priv = rsaPriv
	case BlockRSAPrivateKey:
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}

		priv = parsed
	case BlockEncryptedPrivateKey:
		return nil, fmt.Errorf("%w: encrypted private keys are not supported", ErrUnsupportedKey)
	default:
		return nil, fmt.Errorf("%w: expected private key block, got %q", ErrMalformedKey, block.Type)
	}

	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	return newKeyPair(priv)
}

// Fingerprint returns the hex SHA-256 of the DER SubjectPublicKeyInfo of pub.
// It identifies a key in logs without exposing key material.
func Fingerprint(pub *rsa.PublicKey) string {
	if pub == nil {
		return ""
	}

	sum := sha256.Sum256(marshalPublic(pub))

	return hex.EncodeToString(sum[:])
}

func marshalPublic(pub *rsa.PublicKey) []byte {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		// Unreachable for RSA keys.
		return nil
	}

	return der
}

// decodeBlock extracts exactly one PEM block from text.
func decodeBlock(text string) (*pem.Block, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedKey)
	}

	block, rest := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrMalformedKey)
	}

	if len(bytes.TrimSpace(rest)) != 0 {
		return nil, fmt.Errorf("%w: unexpected data after PEM block", ErrMalformedKey)
	}

	if len(block.Headers) != 0 {
		return nil, fmt.Errorf("%w: PEM headers are not supported", ErrUnsupportedKey)
	}

	return block, nil
}
