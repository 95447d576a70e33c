// Command cipherseald serves the watermark HTTP API.
//
// Without a secret key the service starts degraded and answers 503 on the
// watermark routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/cipherseal"
	"github.com/yyyoichi/cipherseal/internal/config"
	"github.com/yyyoichi/cipherseal/internal/logging"
	"github.com/yyyoichi/cipherseal/internal/server"
)

func main() {
	configPath := flag.String("config", "", "configuration file (.toml, .json, .yaml)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cipherseald:", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	log, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cipherseald:", err)
		os.Exit(2)
	}

	var sealer *cipherseal.Sealer
	switch sealer, err = cfg.Sealer(); {
	case errors.Is(err, config.ErrMissingKey):
		log.WithField("env", cfg.Key.Env).Warn("secret key is not set, running degraded")
	case err != nil:
		log.WithError(err).Error("invalid configuration")
		os.Exit(2)
	default:
		log.WithFields(logrus.Fields{
			"ecc":       sealer.Layer().Name(),
			"normalize": cfg.Watermark.Normalize,
		}).Info("watermarking ready")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(sealer, log, cfg.Server.MaxUploadBytes)
	if err := srv.ListenAndServe(ctx, cfg.Server); err != nil {
		log.WithError(err).Error("server stopped")
		stop()
		os.Exit(1)
	}
}
