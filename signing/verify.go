package signing

import (
	"crypto/rsa"
	"fmt"
	"io"
	"strings"

	"github.com/vitalvas/docsign/digest"
	"github.com/vitalvas/docsign/keys"
)

// Verification messages.
const (
	MessageValid    = "signature is valid"
	MessageMismatch = "signature does not match document/key"
)

// VerificationResult is the outcome of a structurally valid verification.
type VerificationResult struct {
	Valid   bool   `json:"is_valid"`
	Message string `json:"message"`
}

func validResult() VerificationResult {
	return VerificationResult{Valid: true, Message: MessageValid}
}

func mismatchResult() VerificationResult {
	return VerificationResult{Valid: false, Message: MessageMismatch}
}

// Verify checks sig over document against pub.
//
// An empty document, an empty signature or a nil key yields ErrEmptyInput.
// A key of an unsupported size yields keys.ErrUnsupportedKey. Every other
// failure of the signature check is reported as a result with Valid false.
func Verify(document []byte, sig Signature, pub *rsa.PublicKey) (VerificationResult, error) {
	if len(document) == 0 {
		return VerificationResult{}, fmt.Errorf("%w: document", ErrEmptyInput)
	}

	if err := checkVerifyInputs(sig, pub); err != nil {
		return VerificationResult{}, err
	}

	return verifyDigest(digest.Sum(document), sig, pub), nil
}

// VerifyReader checks sig over everything read from r against pub.
func VerifyReader(r io.Reader, sig Signature, pub *rsa.PublicKey) (VerificationResult, error) {
	if err := checkVerifyInputs(sig, pub); err != nil {
		return VerificationResult{}, err
	}

	cr := &countingReader{r: r}

	d, err := digest.SumReader(cr)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("signing: read document: %w", err)
	}

	if cr.n == 0 {
		return VerificationResult{}, fmt.Errorf("%w: document", ErrEmptyInput)
	}

	return verifyDigest(d, sig, pub), nil
}

// VerifyText decodes base64 signature text and a PEM public key, then
// verifies document. Missing inputs are reported before decoding, so an
// empty key yields ErrEmptyInput rather than keys.ErrMalformedKey.
func VerifyText(document []byte, signatureText, publicKeyText string) (VerificationResult, error) {
	switch {
	case len(document) == 0:
		return VerificationResult{}, fmt.Errorf("%w: document", ErrEmptyInput)
	case strings.TrimSpace(signatureText) == "":
		return VerificationResult{}, fmt.Errorf("%w: signature", ErrEmptyInput)
	case strings.TrimSpace(publicKeyText) == "":
		return VerificationResult{}, fmt.Errorf("%w: public key", ErrEmptyInput)
	}

	pub, err := keys.DecodePublic(publicKeyText)
	if err != nil {
		return VerificationResult{}, err
	}

	sig, err := ParseSignature(signatureText)
	if err != nil {
		return VerificationResult{}, err
	}

	return Verify(document, sig, pub)
}

func checkVerifyInputs(sig Signature, pub *rsa.PublicKey) error {
	if len(sig) == 0 {
		return fmt.Errorf("%w: signature", ErrEmptyInput)
	}

	if pub == nil || pub.N == nil {
		return fmt.Errorf("%w: public key", ErrEmptyInput)
	}

	if bits := pub.N.BitLen(); !keys.IsSupportedSize(bits) {
		return fmt.Errorf("%w: rsa modulus of %d bits", keys.ErrUnsupportedKey, bits)
	}

	return nil
}

func verifyDigest(d digest.Digest, sig Signature, pub *rsa.PublicKey) VerificationResult {
	if err := rsa.VerifyPKCS1v15(pub, digest.Hash, d[:], sig); err != nil {
		return mismatchResult()
	}

	return validResult()
}
