// Package config loads docsign settings from an optional YAML file and the
// environment. Values are applied in order: built-in defaults, the YAML
// file, then DOCSIGN_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/vitalvas/docsign/keys"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DOCSIGN_"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds server and client settings.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`

	// SessionTTL is the idle lifetime of a session.
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`

	// MaxSessions bounds live sessions; zero is unbounded.
	MaxSessions uint64 `yaml:"max_sessions" env:"MAX_SESSIONS"`

	// DefaultKeyBits is used when a key generation request names no size.
	DefaultKeyBits int `yaml:"default_key_bits" env:"DEFAULT_KEY_BITS"`

	// AllowedExtensions lists accepted upload file extensions, lowercase
	// and without the dot.
	AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`

	// AllowedContentTypes lists accepted media types of upload content as
	// sniffed from its first bytes, without parameters.
	AllowedContentTypes []string `yaml:"allowed_content_types" env:"ALLOWED_CONTENT_TYPES" envSeparator:","`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// RemoteVerifyURL is the base URL of a remote /verify_signature
	// endpoint used by the command line client.
	RemoteVerifyURL string `yaml:"remote_verify_url" env:"REMOTE_VERIFY_URL"`

	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// LogJSON switches log output from console to JSON lines.
	LogJSON bool `yaml:"log_json" env:"LOG_JSON"`
}

// defaultContentTypes mirrors the media types http.DetectContentType
// reports for the default extensions. DOCX files sniff as application/zip
// and legacy DOC files as application/octet-stream.
var defaultContentTypes = []string{
	"text/plain",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/zip",
	"image/jpeg",
	"image/png",
	"application/octet-stream",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:          ":5000",
		MaxUploadBytes:      16 << 20,
		SessionTTL:          30 * time.Minute,
		DefaultKeyBits:      keys.Bits2048,
		AllowedExtensions:   []string{"txt", "pdf", "doc", "docx", "jpg", "jpeg", "png", "pem", "sig"},
		AllowedContentTypes: slices.Clone(defaultContentTypes),
		ShutdownTimeout:     5 * time.Second,
		LogLevel:            "info",
	}
}

// Load returns the configuration built from defaults, the YAML file at path
// (skipped when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}

	return nil
}

func (c *Config) normalize() {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, ext := range c.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" && !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}

	c.AllowedExtensions = exts

	types := make([]string, 0, len(c.AllowedContentTypes))
	for _, ct := range c.AllowedContentTypes {
		ct = strings.ToLower(strings.TrimSpace(ct))
		if ct != "" && !slices.Contains(types, ct) {
			types = append(types, ct)
		}
	}

	c.AllowedContentTypes = types
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: listen_addr must not be empty", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be greater than zero", ErrInvalidConfig)
	case c.SessionTTL <= 0:
		return fmt.Errorf("%w: session_ttl must be greater than zero", ErrInvalidConfig)
	case !keys.IsSupportedSize(c.DefaultKeyBits):
		return fmt.Errorf("%w: default_key_bits must be one of %v", ErrInvalidConfig, keys.SupportedSizes())
	case len(c.AllowedExtensions) == 0:
		return fmt.Errorf("%w: allowed_extensions must not be empty", ErrInvalidConfig)
	case len(c.AllowedContentTypes) == 0:
		return fmt.Errorf("%w: allowed_content_types must not be empty", ErrInvalidConfig)
	case c.ShutdownTimeout < 0:
		return fmt.Errorf("%w: shutdown_timeout must not be negative", ErrInvalidConfig)
	}

	return nil
}

// ExtensionAllowed reports whether ext, lowercase and without the dot, is
// in AllowedExtensions.
func (c Config) ExtensionAllowed(ext string) bool {
	return slices.Contains(c.AllowedExtensions, ext)
}

// ContentTypeAllowed reports whether a sniffed content type, as returned by
// http.DetectContentType, is in AllowedContentTypes. Parameters such as
// charset are ignored.
func (c Config) ContentTypeAllowed(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return slices.Contains(c.AllowedContentTypes, mediaType)
}
