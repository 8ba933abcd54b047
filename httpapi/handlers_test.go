package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/docsign/config"
	"github.com/vitalvas/docsign/docsign"
	"github.com/vitalvas/docsign/keys"
	"github.com/vitalvas/docsign/signing"
)

var (
	testPairOnce sync.Once
	testPair     docsign.EncodedKeyPair
)

// testKeys returns a 1024-bit key pair shared by the tests in this package.
func testKeys(t *testing.T) docsign.EncodedKeyPair {
	t.Helper()

	testPairOnce.Do(func() {
		pair, err := docsign.GenerateKeyPair(keys.Bits1024)
		if err != nil {
			panic(err)
		}

		testPair = pair
	})

	return testPair
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.DefaultKeyBits = keys.Bits1024

	srv, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		srv.Sessions().Close()
	})

	return srv, ts
}

func newCookieClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{Jar: jar}
}

type formFile struct {
	field, filename, content string
}

func multipartBody(t *testing.T, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)

		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func postFiles(t *testing.T, client *http.Client, url string, files ...formFile) *http.Response {
	t.Helper()

	body, contentType := multipartBody(t, files...)

	resp, err := client.Post(url, contentType, body)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxUploadBytes = 0

	_, err := New(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody[map[string]string](t, resp))
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/verify_signature")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestVerifySignatureEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	pair := testKeys(t)

	document := "hello world"
	sigText, err := docsign.SignDocument([]byte(document), pair.PrivateKey)
	require.NoError(t, err)

	tests := []struct {
		name       string
		files      []formFile
		wantStatus int
		wantError  bool
		wantValid  bool
		wantMsg    string
	}{
		{
			name: "valid",
			files: []formFile{
				{FieldDocument, "doc.txt", document},
				{FieldSignature, "doc.txt.sig", sigText + "\n"},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusOK,
			wantValid:  true,
			wantMsg:    signing.MessageValid,
		},
		{
			name: "tampered document",
			files: []formFile{
				{FieldDocument, "doc.txt", "hello worle"},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusOK,
			wantMsg:    signing.MessageMismatch,
		},
		{
			name: "missing public key",
			files: []formFile{
				{FieldDocument, "doc.txt", document},
				{FieldSignature, "doc.txt.sig", sigText},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
		},
		{
			name: "empty document",
			files: []formFile{
				{FieldDocument, "doc.txt", ""},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
		},
		{
			name: "malformed key",
			files: []formFile{
				{FieldDocument, "doc.txt", document},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", "not a key"},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
			wantMsg:    "key could not be decoded",
		},
		{
			name: "private key as public key",
			files: []formFile{
				{FieldDocument, "doc.txt", document},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PrivateKey},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
		},
		{
			name: "malformed signature",
			files: []formFile{
				{FieldDocument, "doc.txt", document},
				{FieldSignature, "doc.txt.sig", "@@not base64@@"},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
			wantMsg:    "signature could not be decoded",
		},
		{
			name: "html disguised as text",
			files: []formFile{
				{FieldDocument, "page.txt", "<!DOCTYPE html><html><body>hi</body></html>"},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
			wantMsg:    "invalid file content",
		},
		{
			name: "gif disguised as png",
			files: []formFile{
				{FieldDocument, "image.png", "GIF89a\x01\x00\x01\x00"},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
			wantMsg:    "invalid file content",
		},
		{
			name: "png content accepted",
			files: []formFile{
				{FieldDocument, "image.png", "\x89PNG\r\n\x1a\nIHDR"},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusOK,
			wantMsg:    signing.MessageMismatch,
		},
		{
			name: "disallowed extension",
			files: []formFile{
				{FieldDocument, "payload.exe", document},
				{FieldSignature, "doc.txt.sig", sigText},
				{FieldPublicKey, "public.pem", pair.PublicKey},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  true,
			wantMsg:    "invalid file type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postFiles(t, http.DefaultClient, ts.URL+"/verify_signature", tt.files...)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeBody[verifyResponse](t, resp)
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, tt.wantValid, body.IsValid)
			assert.NotEmpty(t, body.Message)

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Message)
			}
		})
	}
}

func TestVerifySignatureNotMultipart(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/verify_signature", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[verifyResponse](t, resp)
	assert.True(t, body.Error)
	assert.False(t, body.IsValid)
}

func TestUploadTooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.MaxUploadBytes = 512

	srv, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(srv.Sessions().Close)

	body, contentType := multipartBody(t,
		formFile{FieldDocument, "doc.txt", strings.Repeat("a", 4096)},
		formFile{FieldSignature, "doc.txt.sig", "AAAA"},
		formFile{FieldPublicKey, "public.pem", "x"},
	)

	req := httptest.NewRequest(http.MethodPost, "/verify_signature", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGenerateKeys(t *testing.T) {
	srv, ts := newTestServer(t)

	t.Run("default size", func(t *testing.T) {
		client := newCookieClient(t)

		resp, err := client.Post(ts.URL+"/generate_keys", "application/json", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[generateKeysResponse](t, resp)
		assert.Equal(t, keys.Bits1024, body.KeySize)
		assert.Len(t, body.Fingerprint, 64)

		pub, err := keys.DecodePublic(body.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, body.Fingerprint, keys.Fingerprint(pub))

		pair, err := keys.DecodePrivate(body.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, keys.Bits1024, pair.Bits())
		pair.Destroy()

		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 1, srv.Sessions().Len())
	})

	t.Run("explicit size", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/generate_keys", "application/json", strings.NewReader(`{"key_size":1024}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[generateKeysResponse](t, resp)
		assert.Equal(t, keys.Bits1024, body.KeySize)
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unsupported size", body: `{"key_size":3072}`, want: "unsupported key size"},
		{name: "unknown field", body: `{"bits":2048}`, want: "malformed request"},
		{name: "not json", body: `key_size=2048`, want: "malformed request"},
		{name: "trailing data", body: `{"key_size":1024} {}`, want: "malformed request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/generate_keys", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			body := decodeBody[errorBody](t, resp)
			assert.True(t, body.Error)
			assert.Equal(t, tt.want, body.Message)
		})
	}
}

func TestSessionFlow(t *testing.T) {
	srv, ts := newTestServer(t)
	client := newCookieClient(t)

	get := func(path string) *http.Response {
		resp, err := client.Get(ts.URL + path)
		require.NoError(t, err)

		return resp
	}

	t.Run("nothing before keys exist", func(t *testing.T) {
		for _, path := range []string{"/download_key/public", "/download_signature", "/verification_result"} {
			resp := get(path)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
			assert.True(t, decodeBody[errorBody](t, resp).Error, path)
		}
	})

	resp, err := client.Post(ts.URL+"/generate_keys", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	generated := decodeBody[generateKeysResponse](t, resp)

	t.Run("download keys", func(t *testing.T) {
		resp := get("/download_key/public")
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/x-pem-file", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="public.pem"`, resp.Header.Get("Content-Disposition"))

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, generated.PublicKey, string(data))

		resp = get("/download_key/private")
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="private.pem"`, resp.Header.Get("Content-Disposition"))

		data, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, generated.PrivateKey, string(data))
	})

	t.Run("unknown key type", func(t *testing.T) {
		resp := get("/download_key/secret")
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	document := "quarterly report"

	t.Run("sign and download signature", func(t *testing.T) {
		resp := postFiles(t, client, ts.URL+"/sign_document",
			formFile{FieldDocument, "../reports/Q3 report.txt", document},
			formFile{FieldPrivateKey, "private.pem", generated.PrivateKey},
		)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		signed := decodeBody[signDocumentResponse](t, resp)
		assert.Equal(t, "Q3_report.txt", signed.DocumentName)
		assert.Equal(t, "Q3_report.txt.sig", signed.SignatureFilename)

		result, err := docsign.VerifySignature([]byte(document), signed.Signature, generated.PublicKey)
		require.NoError(t, err)
		assert.True(t, result.Valid)

		resp = get("/download_signature")
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="Q3_report.txt.sig"`, resp.Header.Get("Content-Disposition"))

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, signed.Signature+"\n", string(data))
	})

	t.Run("verify stores result in session", func(t *testing.T) {
		sigText, err := docsign.SignDocument([]byte(document), generated.PrivateKey)
		require.NoError(t, err)

		resp := postFiles(t, client, ts.URL+"/verify_signature",
			formFile{FieldDocument, "annual report.txt", document},
			formFile{FieldSignature, "report.txt.sig", sigText},
			formFile{FieldPublicKey, "public.pem", generated.PublicKey},
		)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decodeBody[verifyResponse](t, resp).IsValid)

		resp = get("/verification_result")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		stored := decodeBody[verificationResultResponse](t, resp)
		assert.True(t, stored.IsValid)
		assert.Equal(t, signing.MessageValid, stored.Message)
		assert.Equal(t, "annual_report.txt", stored.DocumentName)
	})

	t.Run("sign with invalid key", func(t *testing.T) {
		resp := postFiles(t, client, ts.URL+"/sign_document",
			formFile{FieldDocument, "report.txt", document},
			formFile{FieldPrivateKey, "private.pem", generated.PublicKey},
		)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "private key is invalid", decodeBody[errorBody](t, resp).Message)
	})

	t.Run("clear session", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/session", nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, 0, srv.Sessions().Len())

		for _, path := range []string{"/download_key/private", "/download_signature", "/verification_result"} {
			resp := get(path)
			resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		}
	})
}

func TestDownloadKeyWhileRegenerating(t *testing.T) {
	_, ts := newTestServer(t)
	client := newCookieClient(t)

	resp, err := client.Post(ts.URL+"/generate_keys", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		for range 5 {
			resp, err := client.Post(ts.URL+"/generate_keys", "application/json", nil)
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for range 20 {
				resp, err := client.Get(ts.URL + "/download_key/private")
				if !assert.NoError(t, err) {
					return
				}

				data, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				assert.NoError(t, err)
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				pair, err := keys.DecodePrivate(string(data))
				if assert.NoError(t, err) {
					pair.Destroy()
				}
			}
		}()
	}

	wg.Wait()
}

func TestVerifyWithoutSessionCreatesNone(t *testing.T) {
	srv, ts := newTestServer(t)
	pair := testKeys(t)

	sigText, err := docsign.SignDocument([]byte("doc"), pair.PrivateKey)
	require.NoError(t, err)

	resp := postFiles(t, http.DefaultClient, ts.URL+"/verify_signature",
		formFile{FieldDocument, "doc.txt", "doc"},
		formFile{FieldSignature, "doc.txt.sig", sigText},
		formFile{FieldPublicKey, "public.pem", pair.PublicKey},
	)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
	assert.Equal(t, 0, srv.Sessions().Len())
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "max bytes", err: &http.MaxBytesError{Limit: 1}, want: http.StatusRequestEntityTooLarge},
		{name: "empty input", err: signing.ErrEmptyInput, want: http.StatusBadRequest},
		{name: "invalid key", err: signing.ErrInvalidKey, want: http.StatusBadRequest},
		{name: "malformed key", err: keys.ErrMalformedKey, want: http.StatusBadRequest},
		{name: "unsupported key", err: keys.ErrUnsupportedKey, want: http.StatusBadRequest},
		{name: "invalid parameter", err: keys.ErrInvalidParameter, want: http.StatusBadRequest},
		{name: "malformed signature", err: signing.ErrMalformedSignature, want: http.StatusBadRequest},
		{name: "invalid content", err: errInvalidContent, want: http.StatusBadRequest},
		{name: "no keys", err: errNoKeys, want: http.StatusNotFound},
		{name: "signing", err: signing.ErrSigning, want: http.StatusInternalServerError},
		{name: "unknown", err: io.ErrUnexpectedEOF, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := errorStatus(tt.err)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, msg)
		})
	}
}
