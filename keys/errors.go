package keys

import "errors"

// Generation errors.
var (
	// ErrInvalidParameter is returned when a key size outside
	// SupportedSizes is requested.
	ErrInvalidParameter = errors.New("keys: invalid parameter")
)

// Decoding errors.
var (
	// ErrMalformedKey is returned when key text is not a structurally valid
	// PEM encoded key of the expected kind.
	ErrMalformedKey = errors.New("keys: malformed key")

	// ErrUnsupportedKey is returned when key text decodes correctly but
	// holds a non-RSA key or an RSA key of an unsupported size.
	ErrUnsupportedKey = errors.New("keys: unsupported key")
)
