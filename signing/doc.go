// Package signing produces and checks RSASSA-PKCS1-v1_5 signatures over the
// SHA-256 digest of a document.
//
// The signed message is always the raw 32-byte digest computed by package
// digest. Signature text is standard padded base64.
//
// Verification separates two kinds of failure. Structurally invalid input
// (an empty document, undecodable signature text, an undecodable public key)
// is returned as an error. A signature that simply does not match the
// document and key is not an error: Verify returns a VerificationResult with
// Valid set to false.
//
//	result, err := signing.VerifyText(document, signatureText, publicKeyPEM)
//	switch {
//	case err != nil:
//	    // garbage in: ErrEmptyInput, ErrMalformedSignature,
//	    // keys.ErrMalformedKey or keys.ErrUnsupportedKey
//	case !result.Valid:
//	    // legitimate mismatch
//	}
package signing
