// Package digest computes the canonical document digest used by docsign.
//
// A single hash function, SHA-256, is used everywhere. Signatures always
// cover the raw 32 digest bytes, never a hex rendering of them.
package digest

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Size is the length of a Digest in bytes.
const Size = sha256.Size

// Algorithm is the name of the hash function, as used in Content-Digest
// style identifiers.
const Algorithm = "sha-256"

// Hash is the crypto.Hash identifier paired with signatures over a Digest.
const Hash = crypto.SHA256

// chunkSize matches the read size used when hashing uploaded files.
const chunkSize = 4096

// Digest is a SHA-256 digest of a document.
type Digest [Size]byte

// Sum returns the digest of data. An empty or nil slice is valid input.
func Sum(data []byte) Digest {
	return sha256.Sum256(data)
}

// SumReader returns the digest of everything read from r. Only errors from
// r are returned.
func SumReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)

	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return Digest{}, err
	}

	var d Digest
	copy(d[:], h.Sum(nil))

	return d, nil
}

// Bytes returns a copy of the digest as a slice.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])

	return out
}

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return Algorithm + ":" + d.Hex()
}

// Equal reports whether d and other are the same digest.
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d[:], other[:])
}
