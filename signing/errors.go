package signing

import "errors"

var (
	// ErrEmptyInput is returned when a document, signature or key required
	// by the operation is absent or empty.
	ErrEmptyInput = errors.New("signing: empty input")

	// ErrInvalidKey is returned when a private key cannot be used for
	// signing: it is nil, fails validation, was destroyed, or has an
	// unsupported modulus size.
	ErrInvalidKey = errors.New("signing: invalid key")

	// ErrMalformedSignature is returned when signature text cannot be
	// decoded.
	ErrMalformedSignature = errors.New("signing: malformed signature")

	// ErrSigning is returned when the underlying signature primitive fails.
	ErrSigning = errors.New("signing: signature generation failed")
)
