// Package docsign exposes the text-in, text-out operations consumed by the
// HTTP transport and the command line: key-pair generation, document
// signing and signature verification, plus the file names used when key and
// signature material is handed to a user.
package docsign

import (
	"path"
	"strings"

	"github.com/vitalvas/docsign/keys"
	"github.com/vitalvas/docsign/signing"
)

// File names for downloaded key material.
const (
	PublicKeyFilename  = "public.pem"
	PrivateKeyFilename = "private.pem"
)

// SignatureExt is appended to a document name to name its signature file.
const SignatureExt = ".sig"

// EncodedKeyPair is a key pair in PEM text form.
type EncodedKeyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// Encode returns pair in PEM text form.
func Encode(pair *keys.KeyPair) EncodedKeyPair {
	return EncodedKeyPair{
		PublicKey:  keys.EncodePublic(pair),
		PrivateKey: keys.EncodePrivate(pair),
	}
}

// GenerateKeyPair generates an RSA key pair of the given size and returns it
// as PEM text. The in-memory key is destroyed before returning.
func GenerateKeyPair(bits int) (EncodedKeyPair, error) {
	pair, err := keys.Generate(bits)
	if err != nil {
		return EncodedKeyPair{}, err
	}
	defer pair.Destroy()

	return Encode(pair), nil
}

// SignDocument signs document with a PEM private key and returns the
// signature text.
func SignDocument(document []byte, privateKeyText string) (string, error) {
	sig, err := signing.SignText(document, privateKeyText)
	if err != nil {
		return "", err
	}

	return sig.String(), nil
}

// VerifySignature verifies base64 signature text over document against a
// PEM public key.
func VerifySignature(document []byte, signatureText, publicKeyText string) (signing.VerificationResult, error) {
	return signing.VerifyText(document, signatureText, publicKeyText)
}

// SignatureFilename returns the signature file name for a document name.
// Directory components are dropped and an empty or unusable name becomes
// "document".
func SignatureFilename(documentName string) string {
	return SafeFilename(documentName) + SignatureExt
}

// SignatureFileContents returns the contents written to a .sig file.
func SignatureFileContents(sig signing.Signature) []byte {
	return []byte(sig.String() + "\n")
}

// SafeFilename reduces a user supplied file name to a single path element
// made of letters, digits, '.', '-' and '_'.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "document"
	}

	return out
}

// Extension returns the lowercase extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, "\\", "/"))

	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
