// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/lcd16x2/chardev"
	"github.com/GermanBionicSystems/lcd16x2/config"
	"github.com/GermanBionicSystems/lcd16x2/devnode"
	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
	"github.com/GermanBionicSystems/lcd16x2/lcdview"
	"github.com/GermanBionicSystems/lcd16x2/lines"
)

type serveOptions struct {
	simulate bool
	terminal bool
	httpAddr string
	devDir   string
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drive the display and serve the device node until interrupted",
		Long: `Load the display driver, create the device node and show whatever is
written to it. SIGINT or SIGTERM clears the display, releases the GPIO lines
and removes the node.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(opts.apply)
			if err != nil {
				return err
			}
			log := newLogger(cfg, cmd.ErrOrStderr())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.simulate, "simulate", false, "emulate the display instead of driving GPIO lines")
	f.BoolVar(&opts.terminal, "terminal", false, "draw the emulated display on stdout")
	f.StringVar(&opts.httpAddr, "http", "", "serve the emulated display as an image stream on this address")
	f.StringVar(&opts.devDir, "dev", "", "directory of the device node")
	return cmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.simulate {
		cfg.Simulate = true
	}
	if o.terminal {
		cfg.Preview.Terminal = true
	}
	if o.httpAddr != "" {
		cfg.Preview.HTTP = o.httpAddr
	}
	if o.devDir != "" {
		cfg.Device.DevDir = o.devDir
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	claimer, p, err := setupLines(cfg, log)
	if err != nil {
		return err
	}
	defer p.halt()
	if p.srv != nil {
		go func() {
			if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("preview server")
			}
		}()
	}

	nodeOpts := cfg.Node()
	node := devnode.New(&nodeOpts, log.WithField("component", "devnode"))
	drvCfg := cfg.Driver()
	drv, err := chardev.New(&drvCfg, node, claimer, log)
	if err != nil {
		return err
	}
	if err := drv.Load(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"node": node.Path(), "display": drv.Engine()}).Info("ready")

	serveErr := node.Serve(ctx)
	if err := drv.Unload(); err != nil {
		log.WithError(err).Error("unloading")
	}
	log.WithField("opens", drv.Stats().Opens).Info("stopped")
	return serveErr
}

type previews struct {
	term   *lcdview.Terminal
	stream *lcdview.Stream
	srv    *http.Server
}

func (p *previews) halt() {
	if p.stream != nil {
		_ = p.stream.Halt()
	}
	if p.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.srv.Shutdown(ctx)
	}
	if p.term != nil {
		_ = p.term.Halt()
	}
}

// setupLines returns the source of GPIO lines: the host's pins, or an
// emulated controller with its mirrors attached.
func setupLines(cfg *config.Config, log *logrus.Logger) (lines.Claimer, *previews, error) {
	p := &previews{}
	if !cfg.Simulate {
		if cfg.Preview.Terminal || cfg.Preview.HTTP != "" {
			log.Warn("previews need --simulate, ignored")
		}
		state, err := host.Init()
		if err != nil {
			return nil, nil, fmt.Errorf("initializing periph: %w", err)
		}
		for _, d := range state.Failed {
			log.WithField("driver", d.D.String()).WithError(d.Err).Debug("periph driver failed")
		}
		return lines.NewRegistry(), p, nil
	}

	sim := lcdsim.New(cfg.Display.Rows, cfg.Display.Cols)
	log.WithField("controller", sim).Info("simulating display")
	if cfg.Preview.Terminal {
		p.term = lcdview.NewTerminal(&lcdview.TerminalOpts{})
		sim.OnChange(func(s lcdsim.Snapshot) {
			if err := p.term.Update(s); err != nil {
				log.WithError(err).Warn("terminal preview")
			}
		})
	}
	if cfg.Preview.HTTP != "" {
		panel := lcdview.NewPanel(cfg.Display.Rows, cfg.Display.Cols, &lcdview.PanelOpts{})
		p.stream = lcdview.NewStream(panel, &lcdview.StreamOpts{Log: log.WithField("component", "preview")})
		p.stream.Update(sim.Snapshot())
		sim.OnChange(p.stream.Update)
		p.srv = &http.Server{Addr: cfg.Preview.HTTP, Handler: p.stream, ReadHeaderTimeout: 5 * time.Second}
		log.WithField("addr", cfg.Preview.HTTP).Info("serving preview")
	}
	return sim.Claimer(cfg.LineSet()), p, nil
}
