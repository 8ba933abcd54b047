package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vitalvas/docsign/config"
)

// Exit statuses.
const (
	exitOK       = 0
	exitMismatch = 1
	exitError    = 2
)

// errMismatch is returned by the verify command when the signature is
// well formed but does not match.
var errMismatch = errors.New("signature does not match")

type cli struct {
	Config   string `help:"YAML configuration file." type:"path" env:"DOCSIGN_CONFIG"`
	LogLevel string `help:"Log level (trace, debug, info, warn, error); overrides the configuration."`
	LogJSON  bool   `help:"Write logs as JSON lines."`

	Keygen keygenCmd `cmd:"" help:"Generate an RSA key pair."`
	Sign   signCmd   `cmd:"" help:"Sign a document."`
	Verify verifyCmd `cmd:"" help:"Verify a document signature."`
	Serve  serveCmd  `cmd:"" help:"Run the HTTP server."`
}

// runEnv is bound into every command's Run method.
type runEnv struct {
	ctx    context.Context
	cfg    config.Config
	stdout io.Writer
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		app    cli
		exited = -1
	)

	parser, err := kong.New(&app,
		kong.Name("docsign"),
		kong.Description("Generate RSA keys, sign documents and verify signatures."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exited = code }),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	kctx, err := parser.Parse(args)
	if exited >= 0 {
		return exited
	}

	if err != nil {
		parser.Errorf("%s", err)
		return exitError
	}

	cfg, err := config.Load(app.Config)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	if app.LogLevel != "" {
		cfg.LogLevel = app.LogLevel
	}

	if app.LogJSON {
		cfg.LogJSON = true
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	log.Logger = logger

	err = kctx.Run(&runEnv{ctx: ctx, cfg: cfg, stdout: stdout})

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errMismatch):
		return exitMismatch
	default:
		log.Error().Err(err).Str("command", kctx.Command()).Msg("command failed")
		return exitError
	}
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("config: log_level: %w", err)
	}

	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if !cfg.LogJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
