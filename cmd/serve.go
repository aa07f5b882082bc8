package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/server"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/desertthunder/tunegate/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// Serve runs the gateway until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		if err := overrideAddr(config, addr); err != nil {
			return err
		}
	}
	if err := config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, config, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, err := newManager(config, st, r.logger, reg)
	if err != nil {
		return err
	}

	svc := services.NewSpotifyService(services.SpotifyOptions{
		BaseURL:   config.Credentials.Spotify.APIURL,
		RateLimit: config.API.RateLimit,
		Burst:     config.API.Burst,
		Logger:    shared.WithLogger(r.logger, "service", "spotify"),
	})

	srv, err := server.New(server.Options{
		Config:   config,
		Manager:  manager,
		Service:  svc,
		Store:    st,
		Logger:   r.logger,
		Registry: reg,
	})
	if err != nil {
		return err
	}

	r.logger.Info("starting gateway", "store", config.Store.Driver, "redirect_uri", config.Credentials.Spotify.RedirectURI)
	return srv.ListenAndServe(ctx)
}

// newManager builds the token lifecycle manager from config. reg may be nil.
func newManager(config *shared.Config, st store.Store, logger *log.Logger, reg prometheus.Registerer) (*auth.Manager, error) {
	var metrics *auth.Metrics
	if reg != nil {
		m, err := auth.NewMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register auth metrics: %w", err)
		}
		metrics = m
	}

	return auth.NewManager(auth.Options{
		OAuth:           auth.NewOAuthConfig(config.Credentials.Spotify),
		ShowDialog:      config.Credentials.Spotify.ShowDialog,
		ExpirySkew:      config.Auth.ExpirySkew,
		ExchangeTimeout: config.Auth.ExchangeTimeout,
		RetryBackoff:    config.Auth.RetryBackoff,
		StateTTL:        config.Auth.StateTTL,
		Store:           st,
		Logger:          shared.WithLogger(logger, "component", "auth"),
		Metrics:         metrics,
	})
}

func overrideAddr(config *shared.Config, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: --addr %q: %v", shared.ErrInvalidArgument, addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%w: --addr port %q", shared.ErrInvalidArgument, port)
	}
	config.Server.Host = host
	config.Server.Port = p
	return nil
}
