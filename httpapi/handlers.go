package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalvas/docsign/docsign"
	"github.com/vitalvas/docsign/keys"
	"github.com/vitalvas/docsign/session"
	"github.com/vitalvas/docsign/signing"
)

// SessionCookie names the cookie carrying the session ID.
const SessionCookie = "docsign_session"

// sessionFor returns the caller's session. With create set, a session and
// cookie are issued when the request carries none or an unknown ID.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request, create bool) (*session.Session, bool) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions.Lookup(c.Value); ok {
			return sess, true
		}
	}

	if !create {
		return nil, false
	}

	id := uuid.New().String()

	sess, err := s.sessions.Session(id)
	if err != nil {
		return nil, false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return sess, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := errorStatus(err)

	event := zerolog.Ctx(r.Context()).Warn()
	if code >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}

	event.Err(err).Int("status", code).Msg("request failed")

	ResponseJSON(w, code, errorBody{Error: true, Message: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ResponseJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateKeysRequest struct {
	KeySize int `json:"key_size"`
}

type generateKeysResponse struct {
	docsign.EncodedKeyPair
	KeySize     int    `json:"key_size"`
	Fingerprint string `json:"fingerprint"`
}

func (s *Server) handleGenerateKeys(w http.ResponseWriter, r *http.Request) {
	req := generateKeysRequest{KeySize: s.cfg.DefaultKeyBits}

	if err := BindJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	if req.KeySize == 0 {
		req.KeySize = s.cfg.DefaultKeyBits
	}

	pair, err := keys.GenerateContext(r.Context(), req.KeySize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, ok := s.sessionFor(w, r, true)
	if !ok {
		pair.Destroy()
		s.writeError(w, r, errors.New("httpapi: session store unavailable"))
		return
	}

	resp := generateKeysResponse{
		EncodedKeyPair: docsign.Encode(pair),
		KeySize:        pair.Bits(),
		Fingerprint:    keys.Fingerprint(pair.Public()),
	}

	if err := sess.PutKeyPair(pair); err != nil {
		pair.Destroy()
		s.writeError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Int("bits", resp.KeySize).
		Str("fingerprint", resp.Fingerprint).
		Msg("key pair generated")

	ResponseJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownloadKey(w http.ResponseWriter, r *http.Request) {
	keyType := r.PathValue("type")
	if keyType != "public" && keyType != "private" {
		s.writeError(w, r, fmt.Errorf("%w: key type %q", errBadRequest, keyType))
		return
	}

	sess, ok := s.sessionFor(w, r, false)
	if !ok {
		s.writeError(w, r, errNoKeys)
		return
	}

	filename := docsign.PublicKeyFilename
	if keyType == "private" {
		filename = docsign.PrivateKeyFilename
	}

	var body string

	err := sess.WithKeyPair(func(pair *keys.KeyPair) error {
		if keyType == "private" {
			body = keys.EncodePrivate(pair)
		} else {
			body = keys.EncodePublic(pair)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrEmptySlot) {
			err = errNoKeys
		}

		s.writeError(w, r, err)
		return
	}

	ResponseAttachment(w, "application/x-pem-file", filename, []byte(body))
}

type signDocumentResponse struct {
	Signature         string `json:"signature"`
	SignatureFilename string `json:"signature_filename"`
	DocumentName      string `json:"document_name"`
}

func (s *Server) handleSignDocument(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.parseUploads(r, FieldDocument, FieldPrivateKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	document := uploads[FieldDocument]

	pair, err := keys.DecodePrivate(string(uploads[FieldPrivateKey].data))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", signing.ErrInvalidKey, err))
		return
	}
	defer pair.Destroy()

	signer, err := signing.NewSigner(pair)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sig, err := signer.Sign(document.data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := docsign.SafeFilename(document.name)

	if sess, ok := s.sessionFor(w, r, true); ok {
		if err := sess.PutSignature(session.SignatureEntry{Signature: sig, DocumentName: name}); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	zerolog.Ctx(r.Context()).Info().
		Str("document", name).
		Str("fingerprint", signer.KeyFingerprint()).
		Msg("document signed")

	ResponseJSON(w, http.StatusOK, signDocumentResponse{
		Signature:         sig.String(),
		SignatureFilename: docsign.SignatureFilename(name),
		DocumentName:      name,
	})
}

func (s *Server) handleDownloadSignature(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r, false)
	if !ok {
		s.writeError(w, r, errNoSignature)
		return
	}

	entry, ok := sess.Signature()
	if !ok {
		s.writeError(w, r, errNoSignature)
		return
	}

	ResponseAttachment(w, "application/octet-stream",
		docsign.SignatureFilename(entry.DocumentName),
		docsign.SignatureFileContents(entry.Signature))
}

// verifyResponse is the JSON contract of POST /verify_signature.
type verifyResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	IsValid bool   `json:"is_valid"`
}

func (s *Server) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.parseUploads(r, FieldDocument, FieldSignature, FieldPublicKey)
	if err != nil {
		s.writeVerifyError(w, r, err)
		return
	}

	result, err := docsign.VerifySignature(
		uploads[FieldDocument].data,
		string(uploads[FieldSignature].data),
		string(uploads[FieldPublicKey].data),
	)
	if err != nil {
		s.writeVerifyError(w, r, err)
		return
	}

	name := docsign.SafeFilename(uploads[FieldDocument].name)

	if sess, ok := s.sessionFor(w, r, false); ok {
		if err := sess.PutVerification(session.VerificationEntry{Result: result, DocumentName: name}); err != nil {
			s.writeVerifyError(w, r, err)
			return
		}
	}

	zerolog.Ctx(r.Context()).Info().
		Str("document", name).
		Bool("valid", result.Valid).
		Msg("signature verified")

	ResponseJSON(w, http.StatusOK, verifyResponse{
		Error:   false,
		Message: result.Message,
		IsValid: result.Valid,
	})
}

// verificationResultResponse is the JSON body of GET /verification_result.
type verificationResultResponse struct {
	Message      string `json:"message"`
	IsValid      bool   `json:"is_valid"`
	DocumentName string `json:"document_name"`
}

func (s *Server) writeVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := errorStatus(err)

	zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", code).Msg("verification rejected")

	ResponseJSON(w, code, verifyResponse{Error: true, Message: msg, IsValid: false})
}

func (s *Server) handleVerificationResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r, false)
	if !ok {
		s.writeError(w, r, errNoVerification)
		return
	}

	entry, ok := sess.Verification()
	if !ok {
		s.writeError(w, r, errNoVerification)
		return
	}

	ResponseJSON(w, http.StatusOK, verificationResultResponse{
		Message:      entry.Result.Message,
		IsValid:      entry.Result.Valid,
		DocumentName: entry.DocumentName,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.sessions.Drop(c.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	w.WriteHeader(http.StatusNoContent)
}
