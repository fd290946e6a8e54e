// amfgateway serves AMF remoting calls over HTTP with an echo service and
// an optional shared object store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtrqq/amf/pkg/gateway"
	"github.com/mtrqq/amf/pkg/sol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("amfgateway failed")
	}
}

func run(args []string) error {
	var configPath string

	flagSet := pflag.NewFlagSet("amfgateway", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config, defaults apply when empty")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log level %q", errInvalidConfig, cfg.LogLevel)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", cfg.Listen, err)
	}

	return serve(ctx, listener, cfg, prometheus.NewRegistry())
}

// serve runs the gateway on listener until ctx is done.
func serve(ctx context.Context, listener net.Listener, cfg config, reg *prometheus.Registry) error {
	handler, store, err := newHandler(cfg, reg)
	if err != nil {
		listener.Close()
		return err
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("address", listener.Addr().String()).Str("path", cfg.Path).Msg("gateway listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if store != nil {
		if closeErr := store.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("dir", store.Dir()).Msg("unable to sync store")
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

func newHandler(cfg config, reg *prometheus.Registry) (http.Handler, *sol.Store, error) {
	gw, err := gateway.NewServer(gateway.ServerOptions{
		CrossDomain: cfg.CrossDomain,
		MaxBodySize: cfg.MaxBodySize,
		Encodings:   cfg.Encodings,
		Namespace:   cfg.Namespace,
		Registerer:  reg,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := gw.RegisterService(echoService()); err != nil {
		return nil, nil, err
	}

	var store *sol.Store
	if cfg.Store.Dir != "" {
		store, err = sol.OpenStore(cfg.Store.Dir, sol.StoreOptions{
			Capacity: cfg.Store.Capacity,
			Registry: gw.Codec().Registry(),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := gw.RegisterService(storeService(store)); err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", store.Dir()).Msg("serving shared object store")
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, gw)
	mux.Handle("/crossdomain.xml", gw)
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return mux, store, nil
}
