package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vitalvas/docsign/keys"
	"github.com/vitalvas/docsign/signing"
)

// Transport errors.
var (
	errInvalidFileType = errors.New("httpapi: invalid file type")
	errInvalidContent  = errors.New("httpapi: invalid file content")
	errNoKeys          = errors.New("httpapi: no keys in session")
	errNoSignature     = errors.New("httpapi: no signature in session")
	errNoVerification  = errors.New("httpapi: no verification result in session")
	errBadRequest      = errors.New("httpapi: bad request")
)

// errorBody is the JSON body of every error response. Verification
// responses extend it with is_valid.
type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// ResponseJSON encodes v as JSON and writes it with the given status code.
// If encoding fails, an HTTP 500 Internal Server Error is written instead.
func ResponseJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

// BindJSON decodes the request body as JSON into v, rejecting unknown
// fields and trailing data.
func BindJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after JSON value")
	}

	return nil
}

// ResponseAttachment writes body as a file download named filename.
func ResponseAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// errorStatus maps an error to an HTTP status code and a message safe to
// show to a user.
func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "upload is too large"
	case errors.Is(err, signing.ErrEmptyInput):
		return http.StatusBadRequest, "missing required input: document, signature and key must be provided"
	case errors.Is(err, signing.ErrInvalidKey):
		return http.StatusBadRequest, "private key is invalid"
	case errors.Is(err, keys.ErrMalformedKey):
		return http.StatusBadRequest, "key could not be decoded"
	case errors.Is(err, keys.ErrUnsupportedKey):
		return http.StatusBadRequest, "key algorithm or size is not supported"
	case errors.Is(err, keys.ErrInvalidParameter):
		return http.StatusBadRequest, "unsupported key size"
	case errors.Is(err, signing.ErrMalformedSignature):
		return http.StatusBadRequest, "signature could not be decoded"
	case errors.Is(err, errInvalidFileType):
		return http.StatusBadRequest, "invalid file type"
	case errors.Is(err, errInvalidContent):
		return http.StatusBadRequest, "invalid file content"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "malformed request"
	case errors.Is(err, errNoKeys):
		return http.StatusNotFound, "no keys found, generate keys first"
	case errors.Is(err, errNoSignature):
		return http.StatusNotFound, "no signature found, sign a document first"
	case errors.Is(err, errNoVerification):
		return http.StatusNotFound, "no verification result found"
	case errors.Is(err, signing.ErrSigning):
		return http.StatusInternalServerError, "signing failed"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
