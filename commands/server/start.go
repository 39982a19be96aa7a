package server

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iov-one/clearpay/api"
	"github.com/iov-one/clearpay/config"
	"github.com/iov-one/clearpay/errors"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"

	shutdownTimeout = 15 * time.Second
)

func parseFlags(name string, args []string) (string, bool, error) {
	var path string
	var debug bool

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&path, flagConfig, "", "configuration file, environment only if empty")
	fs.BoolVar(&debug, flagDebug, false, "call stack returned on error")
	err := fs.Parse(args)
	return path, debug, err
}

// loadConfig reads the configuration and applies the log level.
func loadConfig(name string, logger log.Logger, args []string) (*config.Config, log.Logger, bool, error) {
	path, debug, err := parseFlags(name, args)
	if err != nil {
		return nil, nil, false, errors.Wrap(errors.ErrInput, err.Error())
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, false, err
	}
	logger, err = filterLevel(logger, cfg.Log.Level)
	if err != nil {
		return nil, nil, false, err
	}
	return cfg, logger, debug || cfg.HTTP.Debug, nil
}

func filterLevel(logger log.Logger, level string) (log.Logger, error) {
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return log.NewFilter(logger, opt), nil
}

// StartCmd runs the HTTP API until the process receives an interrupt.
func StartCmd(logger log.Logger, args []string) error {
	cfg, logger, debug, err := loadConfig("start", logger, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("cannot close app", "err", err)
		}
	}()

	gwConf := app.Gateway.Config()
	settings := api.Settings{
		Arbiter:       app.Machine.Arbiter(),
		Issuer:        gwConf.Issuer,
		Currency:      gwConf.Currency,
		ExpiryHorizon: gwConf.ExpiryHorizon,
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(app.Machine, settings, logger, debug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP API", "bind", cfg.HTTP.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(errors.ErrNetwork, err.Error())
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "err", err)
	}
	return nil
}
