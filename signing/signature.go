package signing

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
)

// Signature is a raw RSASSA-PKCS1-v1_5 signature.
type Signature []byte

// String returns the signature as standard padded base64, the form written
// to .sig files.
func (s Signature) String() string {
	return base64.StdEncoding.EncodeToString(s)
}

// ParseSignature decodes base64 signature text. Whitespace anywhere in the
// text is ignored, so line-wrapped .sig files decode as well.
func ParseSignature(text string) (Signature, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, text)

	if compact == "" {
		return nil, fmt.Errorf("%w: signature", ErrEmptyInput)
	}

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return Signature(raw), nil
}
