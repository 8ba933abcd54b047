package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"math/big"
	"slices"
	"sync/atomic"
)

// Supported RSA modulus sizes in bits.
const (
	Bits1024 = 1024
	Bits2048 = 2048
	Bits4096 = 4096
)

var supportedSizes = []int{Bits1024, Bits2048, Bits4096}

// SupportedSizes returns the RSA modulus sizes accepted by Generate and the
// decoders, in ascending order.
func SupportedSizes() []int {
	return slices.Clone(supportedSizes)
}

// IsSupportedSize reports whether bits is a supported modulus size.
func IsSupportedSize(bits int) bool {
	return slices.Contains(supportedSizes, bits)
}

// KeyPair is an RSA private key together with its public half. The public
// key is always derived from the private key, so the two can never come
// from different generations.
type KeyPair struct {
	private   *rsa.PrivateKey
	bits      int
	destroyed atomic.Bool
}

func newKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	bits := priv.N.BitLen()
	if !IsSupportedSize(bits) {
		return nil, fmt.Errorf("%w: rsa modulus of %d bits", ErrUnsupportedKey, bits)
	}

	return &KeyPair{private: priv, bits: bits}, nil
}

// Generate creates a new RSA key pair of the given size using crypto/rand.
func Generate(bits int) (*KeyPair, error) {
	return GenerateWithReader(rand.Reader, bits)
}

// GenerateWithReader creates a new RSA key pair reading entropy from random.
func GenerateWithReader(random io.Reader, bits int) (*KeyPair, error) {
	if !IsSupportedSize(bits) {
		return nil, fmt.Errorf("%w: key size %d not in %v", ErrInvalidParameter, bits, supportedSizes)
	}

	priv, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate %d-bit key: %w", bits, err)
	}

	return newKeyPair(priv)
}

type generateResult struct {
	pair *KeyPair
	err  error
}

// GenerateContext runs Generate on a separate goroutine. When ctx is done
// before generation finishes, ctx.Err() is returned and the key produced
// later is destroyed without being handed out.
func GenerateContext(ctx context.Context, bits int) (*KeyPair, error) {
	if !IsSupportedSize(bits) {
		return nil, fmt.Errorf("%w: key size %d not in %v", ErrInvalidParameter, bits, supportedSizes)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan generateResult, 1)
	abandoned := make(chan struct{})

	go func() {
		pair, err := Generate(bits)

		select {
		case done <- generateResult{pair: pair, err: err}:
		case <-abandoned:
			if pair != nil {
				pair.Destroy()
			}
		}
	}()

	select {
	case res := <-done:
		return res.pair, res.err
	case <-ctx.Done():
		close(abandoned)

		// The worker may already have delivered into the buffer.
		select {
		case res := <-done:
			if res.pair != nil {
				res.pair.Destroy()
			}
		default:
		}

		return nil, ctx.Err()
	}
}

// Bits returns the modulus size in bits.
func (k *KeyPair) Bits() int {
	return k.bits
}

// Private returns the private key, or nil once the pair has been destroyed.
func (k *KeyPair) Private() *rsa.PrivateKey {
	if k == nil || k.destroyed.Load() {
		return nil
	}

	return k.private
}

// Public returns the public key derived from the private key, or nil once
// the pair has been destroyed.
func (k *KeyPair) Public() *rsa.PublicKey {
	priv := k.Private()
	if priv == nil {
		return nil
	}

	return &priv.PublicKey
}

// Equal reports whether k and other hold the same private key.
func (k *KeyPair) Equal(other *KeyPair) bool {
	a, b := k.Private(), other.Private()
	if a == nil || b == nil {
		return false
	}

	return a.Equal(b)
}

// Destroyed reports whether Destroy has been called.
func (k *KeyPair) Destroyed() bool {
	return k.destroyed.Load()
}

// Destroy zeroes the private key material, drops the precomputed CRT
// values and marks the pair unusable. It is safe to call more than once.
// Destroy must not race with readers of the pair; callers sharing a pair
// serialize access themselves, as package session does.
func (k *KeyPair) Destroy() {
	if k == nil || k.destroyed.Swap(true) {
		return
	}

	priv := k.private
	zeroInt(priv.D)
	for _, p := range priv.Primes {
		zeroInt(p)
	}
	zeroInt(priv.Precomputed.Dp)
	zeroInt(priv.Precomputed.Dq)
	zeroInt(priv.Precomputed.Qinv)

	priv.Precomputed = rsa.PrecomputedValues{}
}

func zeroInt(n *big.Int) {
	if n == nil {
		return
	}

	words := n.Bits()
	clear(words)
	n.SetInt64(0)
}
