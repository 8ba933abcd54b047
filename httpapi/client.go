package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/vitalvas/docsign/docsign"
	"github.com/vitalvas/docsign/signing"
)

// ErrInvalidBaseURL is returned by NewClient when the base URL is not an
// absolute http or https URL.
var ErrInvalidBaseURL = errors.New("httpapi: base URL must be an absolute http or https URL")

// maxResponseBytes bounds the body read from a remote verify response.
const maxResponseBytes = 1 << 20

// RemoteError is a structural error reported by a remote verify endpoint.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("httpapi: remote verify failed with status %d: %s", e.StatusCode, e.Message)
}

// VerifyUpload is one verification request. Signature and PublicKey hold
// the text contents of the .sig and .pem files.
type VerifyUpload struct {
	Document     []byte
	DocumentName string
	Signature    string
	PublicKey    string
}

// Client calls a remote POST /verify_signature endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a Client for the server at baseURL. A nil httpClient
// means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		endpoint:   strings.TrimSuffix(u.String(), "/") + "/verify_signature",
		httpClient: httpClient,
	}, nil
}

// Verify uploads the document, signature and public key and returns the
// remote verdict. A mismatch is a result with Valid unset, not an error.
func (c *Client) Verify(ctx context.Context, up VerifyUpload) (signing.VerificationResult, error) {
	body, contentType, err := up.encode()
	if err != nil {
		return signing.VerificationResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return signing.VerificationResult{}, fmt.Errorf("httpapi: build request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return signing.VerificationResult{}, fmt.Errorf("httpapi: post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return signing.VerificationResult{}, &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("undecodable response: %v", err),
		}
	}

	if out.Error || resp.StatusCode != http.StatusOK {
		return signing.VerificationResult{}, &RemoteError{StatusCode: resp.StatusCode, Message: out.Message}
	}

	return signing.VerificationResult{Valid: out.IsValid, Message: out.Message}, nil
}

func (up VerifyUpload) encode() (*bytes.Buffer, string, error) {
	name := docsign.SafeFilename(up.DocumentName)

	parts := []struct {
		field, filename string
		data            []byte
	}{
		{FieldDocument, name, up.Document},
		{FieldSignature, docsign.SignatureFilename(name), []byte(up.Signature)},
		{FieldPublicKey, docsign.PublicKeyFilename, []byte(up.PublicKey)},
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			return nil, "", fmt.Errorf("httpapi: encode %s: %w", p.field, err)
		}

		if _, err := fw.Write(p.data); err != nil {
			return nil, "", fmt.Errorf("httpapi: encode %s: %w", p.field, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("httpapi: encode: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}
