package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/linkctl/internal/api"
	"github.com/danmuck/linkctl/internal/auth"
	"github.com/danmuck/linkctl/internal/config"
	"github.com/danmuck/linkctl/internal/display"
	"github.com/danmuck/linkctl/internal/layout"
	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/logging"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "cmd/linkctl/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to linkctl.toml")
	autostart := flag.Bool("autostart", false, "start the configured session at boot")
	addr := flag.String("addr", "", "override [http] addr")
	flag.Parse()

	cfg, err := loadConfig(*configPath, isFlagSet("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkctl: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	logging.ConfigureWith(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *autostart); err != nil {
		log.Error().Err(err).Msg("linkctl exited with error")
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default path is absent; an
// explicitly requested file must exist.
func loadConfig(path string, explicit bool) (config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(ctx context.Context, cfg config.Config, autostart bool) error {
	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	records, err := display.Open(cfg.DisplayOptions())
	if err != nil {
		return err
	}
	defer records.Close()

	layouts, err := layout.Open(cfg.Layouts.Path)
	if err != nil {
		return err
	}

	mgr := link.NewManager(sessCfg, records)
	defer mgr.Close()
	if err := mgr.Configure(ctx, cfg.Connection); err != nil {
		return fmt.Errorf("apply [connection]: %w", err)
	}

	srv, err := api.New("linkctl", cfg.HTTP.Addr, cfg.HTTP.CorsOrigins, api.Deps{
		Link:    mgr,
		Display: records,
		Layouts: layouts,
		Auth:    auth.FromConfig(cfg.HTTP.Token),
	})
	if err != nil {
		return err
	}
	srv.CertFile = cfg.HTTP.TLSCert
	srv.KeyFile = cfg.HTTP.TLSKey

	log.Info().
		Str("http", cfg.HTTP.Addr).
		Str("role", string(cfg.Connection.Role)).
		Int("records", records.Len()).
		Strs("layouts", layouts.Names()).
		Msg("linkctl starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if autostart {
		g.Go(func() error {
			if err := mgr.Start(gctx); err != nil {
				// a failed start is visible through /connection/status; keep serving
				log.Warn().Err(err).Msg("linkctl autostart failed")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return mgr.Stop(context.Background())
	})

	err = g.Wait()
	log.Info().Msg("linkctl stopped")
	return err
}
