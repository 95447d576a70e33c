// Command cipherseal embeds and detects keyed watermarks in image and text
// files. The secret key is read from the environment, by default
// WATERMARKER_SECRET_KEY.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/cipherseal"
	"github.com/yyyoichi/cipherseal/internal/config"
	"github.com/yyyoichi/cipherseal/internal/logging"
)

var version = "dev"

const (
	exitOK = iota
	exitFailure
	exitUsage
	exitCapacity
	exitMismatch
)

var (
	errUsage    = errors.New("usage")
	errMismatch = errors.New("watermark did not verify")
)

const usage = `usage: cipherseal [-config file] [-log-level level] [-log-format text|json] <command>

commands:
  add image <in> -o <out> [-w message]
  add text <in> -o <out> [-w message]
  detect image <in> [-json]
  detect text <in> [-strip <out>] [-json]
  batch add image|text <in...> -o <dir> [-w message] [-j workers]
  batch detect image|text <in...> [-j workers]
  quality <original> <marked> [-json]
  version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cipherseal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	var (
		configPath = fs.String("config", "", "configuration file (.toml, .json, .yaml)")
		logLevel   = fs.String("log-level", "", "log level")
		logFormat  = fs.String("log-format", "", "log format: text or json")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "cipherseal:", err)
		return exitUsage
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	log, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "cipherseal:", err)
		return exitUsage
	}

	a := &app{cfg: cfg, log: log, stdout: stdout}
	err = a.dispatch(ctx, fs.Args())
	code := exitCode(err)
	switch {
	case err == nil, errors.Is(err, errMismatch):
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, "cipherseal:", err)
		fmt.Fprint(stderr, usage)
	default:
		log.WithError(err).Error("command failed")
	}
	return code
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return a.add(ctx, rest)
	case "detect":
		return a.detect(ctx, rest)
	case "batch":
		return a.batch(ctx, rest)
	case "quality":
		return a.quality(rest)
	case "version":
		fmt.Fprintln(a.stdout, "cipherseal", version)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errMismatch):
		return exitMismatch
	case errors.Is(err, cipherseal.ErrInsufficientCapacity), errors.Is(err, cipherseal.ErrMessageTooLong):
		return exitCapacity
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp),
		errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrMissingKey):
		return exitUsage
	}
	return exitFailure
}

// parseArgs parses fs allowing flags after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}
