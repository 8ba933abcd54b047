package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vitalvas/docsign/docsign"
	"github.com/vitalvas/docsign/signing"
)

// Multipart form field names.
const (
	FieldDocument   = "document"
	FieldSignature  = "signature"
	FieldPublicKey  = "public_key"
	FieldPrivateKey = "private_key"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files that are removed when the request ends.
const multipartMemory = 1 << 20

type upload struct {
	name string
	data []byte
}

// parseUploads reads the named file fields of a multipart request. A
// missing field or an unnamed file is ErrEmptyInput; a file name whose
// extension is not allowed is errInvalidFileType; content whose sniffed
// media type is not allowed is errInvalidContent.
func (s *Server) parseUploads(r *http.Request, fields ...string) (map[string]upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, maxBytes
		}

		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	out := make(map[string]upload, len(fields))

	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return nil, fmt.Errorf("%w: %s", signing.ErrEmptyInput, field)
			}

			return nil, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
		}

		data, err := io.ReadAll(file)
		file.Close()

		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", errBadRequest, field, err)
		}

		if header.Filename == "" {
			return nil, fmt.Errorf("%w: %s has no file name", signing.ErrEmptyInput, field)
		}

		if !s.cfg.ExtensionAllowed(docsign.Extension(header.Filename)) {
			return nil, fmt.Errorf("%w: %s", errInvalidFileType, header.Filename)
		}

		if ct := http.DetectContentType(data); !s.cfg.ContentTypeAllowed(ct) {
			return nil, fmt.Errorf("%w: %s sniffed as %s", errInvalidContent, header.Filename, ct)
		}

		out[field] = upload{name: header.Filename, data: data}
	}

	return out, nil
}
