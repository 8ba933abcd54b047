package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vitalvas/docsign/config"
	"github.com/vitalvas/docsign/docsign"
	"github.com/vitalvas/docsign/httpapi"
	"github.com/vitalvas/docsign/keys"
	"github.com/vitalvas/docsign/signing"
)

// remoteTimeout bounds a remote verification call.
const remoteTimeout = 30 * time.Second

type keygenCmd struct {
	Bits   int    `help:"Modulus size in bits (1024, 2048 or 4096). Defaults to the configured size."`
	OutDir string `help:"Directory to write public.pem and private.pem to." type:"path" default:"."`
	Force  bool   `help:"Overwrite existing key files."`
}

func (c *keygenCmd) Run(env *runEnv) error {
	bits := c.Bits
	if bits == 0 {
		bits = env.cfg.DefaultKeyBits
	}

	pair, err := keys.GenerateContext(env.ctx, bits)
	if err != nil {
		return err
	}
	defer pair.Destroy()

	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", c.OutDir, err)
	}

	files := []struct {
		name string
		data string
		perm os.FileMode
	}{
		{docsign.PublicKeyFilename, keys.EncodePublic(pair), 0o644},
		{docsign.PrivateKeyFilename, keys.EncodePrivate(pair), 0o600},
	}

	for _, f := range files {
		path := filepath.Join(c.OutDir, f.name)
		if err := writeFile(path, []byte(f.data), f.perm, c.Force); err != nil {
			return err
		}

		fmt.Fprintln(env.stdout, path)
	}

	log.Info().
		Int("bits", pair.Bits()).
		Str("fingerprint", keys.Fingerprint(pair.Public())).
		Msg("key pair generated")

	return nil
}

type signCmd struct {
	Document string `arg:"" help:"Document to sign." type:"existingfile"`
	Key      string `help:"PEM private key." type:"existingfile" required:""`
	Out      string `help:"Signature file. Defaults to the document name plus .sig next to the document." type:"path"`
	Force    bool   `help:"Overwrite an existing signature file."`
}

func (c *signCmd) Run(env *runEnv) error {
	keyText, err := os.ReadFile(c.Key)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	pair, err := keys.DecodePrivate(string(keyText))
	if err != nil {
		return fmt.Errorf("%w: %w", signing.ErrInvalidKey, err)
	}
	defer pair.Destroy()

	signer, err := signing.NewSigner(pair)
	if err != nil {
		return err
	}

	doc, err := os.Open(c.Document)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	sig, err := signer.SignReader(doc)
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = filepath.Join(filepath.Dir(c.Document), docsign.SignatureFilename(filepath.Base(c.Document)))
	}

	if err := writeFile(out, docsign.SignatureFileContents(sig), 0o644, c.Force); err != nil {
		return err
	}

	fmt.Fprintln(env.stdout, out)

	log.Info().
		Str("document", c.Document).
		Str("fingerprint", signer.KeyFingerprint()).
		Msg("document signed")

	return nil
}

type verifyCmd struct {
	Document  string `arg:"" help:"Document to verify." type:"existingfile"`
	Signature string `help:"Signature file (.sig)." type:"existingfile" required:""`
	Key       string `help:"PEM public key." type:"existingfile" required:""`
	Remote    string `help:"Base URL of a docsign server to verify with instead of verifying locally. A document whose extension is not in allowed_extensions is uploaded with .txt appended to its name; the server still checks its content."`
}

func (c *verifyCmd) Run(env *runEnv) error {
	sigText, err := os.ReadFile(c.Signature)
	if err != nil {
		return fmt.Errorf("read signature: %w", err)
	}

	keyText, err := os.ReadFile(c.Key)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	remote := c.Remote
	if remote == "" {
		remote = env.cfg.RemoteVerifyURL
	}

	var result signing.VerificationResult

	if remote != "" {
		result, err = c.verifyRemote(env, remote, string(sigText), string(keyText))
	} else {
		result, err = c.verifyLocal(string(sigText), string(keyText))
	}

	if err != nil {
		return err
	}

	fmt.Fprintln(env.stdout, result.Message)

	if !result.Valid {
		return errMismatch
	}

	return nil
}

func (c *verifyCmd) verifyLocal(sigText, keyText string) (signing.VerificationResult, error) {
	doc, err := os.Open(c.Document)
	if err != nil {
		return signing.VerificationResult{}, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	info, err := doc.Stat()
	if err != nil {
		return signing.VerificationResult{}, fmt.Errorf("stat document: %w", err)
	}

	switch {
	case info.Size() == 0:
		return signing.VerificationResult{}, fmt.Errorf("%w: document", signing.ErrEmptyInput)
	case strings.TrimSpace(sigText) == "":
		return signing.VerificationResult{}, fmt.Errorf("%w: signature", signing.ErrEmptyInput)
	case strings.TrimSpace(keyText) == "":
		return signing.VerificationResult{}, fmt.Errorf("%w: public key", signing.ErrEmptyInput)
	}

	pub, err := keys.DecodePublic(keyText)
	if err != nil {
		return signing.VerificationResult{}, err
	}

	sig, err := signing.ParseSignature(sigText)
	if err != nil {
		return signing.VerificationResult{}, err
	}

	return signing.VerifyReader(doc, sig, pub)
}

func (c *verifyCmd) verifyRemote(env *runEnv, baseURL, sigText, keyText string) (signing.VerificationResult, error) {
	client, err := httpapi.NewClient(baseURL, &http.Client{Timeout: remoteTimeout})
	if err != nil {
		return signing.VerificationResult{}, err
	}

	document, err := os.ReadFile(c.Document)
	if err != nil {
		return signing.VerificationResult{}, fmt.Errorf("read document: %w", err)
	}

	log.Debug().Str("remote", baseURL).Str("document", c.Document).Msg("verifying remotely")

	return client.Verify(env.ctx, httpapi.VerifyUpload{
		Document:     document,
		DocumentName: remoteDocumentName(c.Document, env.cfg),
		Signature:    sigText,
		PublicKey:    keyText,
	})
}

// remoteDocumentName returns the upload name for a document. The server
// rejects names outside its extension allowlist, while local verification
// accepts any file, so a disallowed extension gets ".txt" appended. Only
// the name changes; the signed bytes are sent as they are.
func remoteDocumentName(path string, cfg config.Config) string {
	name := filepath.Base(path)
	if cfg.ExtensionAllowed(docsign.Extension(name)) {
		return name
	}

	return name + ".txt"
}

type serveCmd struct {
	Listen string `help:"Listen address, overrides the configuration."`
}

func (c *serveCmd) Run(env *runEnv) error {
	cfg := env.cfg
	if c.Listen != "" {
		cfg.ListenAddr = c.Listen
	}

	srv, err := httpapi.New(cfg, log.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(env.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// writeFile writes data to path, refusing to replace an existing file
// unless force is set.
func writeFile(path string, data []byte, perm os.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	return f.Close()
}
