package main

import (
	"errors"
	"fmt"
	"os"

	"kvpedit/internal/config"
	"kvpedit/internal/health"
	"kvpedit/internal/metrics"
	"kvpedit/internal/pipeline"
	"kvpedit/internal/prefs"
	"kvpedit/internal/render"
	"kvpedit/internal/store"
	"kvpedit/internal/watcher"
)

// RunCmd runs segmentation and phoneticization once and prints the result.
type RunCmd struct {
	Text    string `short:"t" help:"Source text (default: the stored session)"`
	Variant string `short:"V" help:"Print this variant instead of the stored one"`
	Plain   bool   `short:"p" help:"Print plain text instead of display markup"`
}

func (c *RunCmd) Run(a *app) error {
	if c.Variant != "" {
		if err := prefs.Validate("variant", c.Variant); err != nil {
			return err
		}
	}

	o, _, cleanup, err := a.orchestrator(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Text != "" {
		if err := o.SetSource(c.Text); err != nil {
			return err
		}
	}
	if err := o.Refresh(a.ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	snap := o.Snapshot()
	variant := snap.Variant
	if c.Variant != "" {
		variant = c.Variant
	}
	return a.print(snap.Rendering.Variant(variant), c.Plain)
}

// WatchCmd feeds edits of a source file into the live pipeline.
type WatchCmd struct {
	File    string `arg:"" help:"Source text file to follow" type:"path"`
	Metrics string `help:"Serve metrics on this address (overrides config)"`
	Plain   bool   `short:"p" help:"Print plain text instead of display markup"`
}

func (c *WatchCmd) Run(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	log, err := a.logger()
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry("kvpedit")
	o, kv, cleanup, err := a.orchestrator(metrics.NewPipeline(registry))
	if err != nil {
		return err
	}
	defer cleanup()

	if addr := c.metricsAddr(cfg); addr != "" {
		checker := health.NewChecker()
		checker.RegisterFunc("service", true, health.ServiceCheck(nil, cfg.Service.URL))
		checker.RegisterFunc("store", false, health.StoreCheck(kv))
		checker.RegisterFunc("pipeline", false, health.PipelineCheck(o))

		srv, bound, err := metrics.Serve(addr, registry,
			metrics.Route{Pattern: "/healthz", Handler: checker.Handler()})
		if err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		defer srv.Close()
		log.Info("serving metrics", "addr", bound.String())
	}

	w, err := watcher.New(c.File, watcher.DefaultDebounce)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch %s: %w", c.File, err)
	}
	defer w.Stop()

	var reloadErrs <-chan error
	if path := a.configPath(); fileExists(path) {
		loader := config.NewLoader(path)
		if _, err := loader.Load(); err != nil {
			return err
		}
		loader.OnChange(func(next *config.Config) {
			o.SetQuietPeriod(next.QuietPeriod())
			log.Info("configuration reloaded", "quiet_period", next.QuietPeriod())
		})
		if err := loader.Watch(); err != nil {
			log.Warn("config hot reload disabled", "path", path, "error", err)
		} else {
			reloadErrs = loader.Errors()
		}
		defer loader.Close()
	}

	snaps, unsubscribe := o.Subscribe()
	defer unsubscribe()

	log.Info("watching source file", "path", w.Path())
	watchErrs := w.Errors()
	var last string
	for {
		select {
		case <-a.ctx.Done():
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := o.SetSource(ev.Content); err != nil {
				if errors.Is(err, pipeline.ErrStopped) {
					return nil
				}
				return err
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			log.Warn("watcher error", "error", err)

		case err := <-reloadErrs:
			log.Warn("config reload failed", "error", err)

		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.Stage != pipeline.Phoneticized || snap.Busy {
				continue
			}
			if out := snap.Display(); out != last {
				last = out
				if err := a.print(out, c.Plain); err != nil {
					return err
				}
			}
		}
	}
}

func (c *WatchCmd) metricsAddr(cfg *config.Config) string {
	if c.Metrics != "" {
		return c.Metrics
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Listen
	}
	return ""
}

// orchestrator builds and starts a pipeline restored from the stored
// session. The returned func stops it and closes the preference store.
func (a *app) orchestrator(m *metrics.Pipeline) (*pipeline.Orchestrator, store.KV, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := a.logger()
	if err != nil {
		return nil, nil, nil, err
	}
	svc, err := a.newService()
	if err != nil {
		return nil, nil, nil, err
	}
	kv, err := a.openStore()
	if err != nil {
		return nil, nil, nil, err
	}

	o := pipeline.New(svc, prefs.New(kv), pipeline.Options{
		QuietPeriod: cfg.QuietPeriod(),
		Logger:      log,
		Metrics:     m,
	})
	if err := o.Restore(); err != nil {
		kv.Close()
		return nil, nil, nil, err
	}
	o.Start(a.ctx)
	return o, kv, func() {
		o.Stop()
		kv.Close()
	}, nil
}

func (a *app) print(markup string, plain bool) error {
	if plain {
		markup = render.PlainText(markup)
	}
	_, err := fmt.Fprintln(a.stdout, markup)
	return err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
