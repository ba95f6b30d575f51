// Command kvpedit renders Tibetan liturgical text into phonetic display forms
// and keeps a live rendering in step with an edited source file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"kvpedit/internal/config"
	"kvpedit/internal/logging"
	"kvpedit/internal/prefs"
	"kvpedit/internal/service"
	"kvpedit/internal/store"
)

// Version is set at build time.
var Version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `name:"config" short:"c" help:"Config file (default: platform config dir)" type:"path"`
	LogLevel string `name:"log-level" help:"Override the log level (debug, info, warn, error)"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Render     RenderCmd  `cmd:"" help:"Render raw phonetics from a file or stdin"`
	Plain      PlainCmd   `cmd:"" help:"Strip display markup to plain text"`
	Run        RunCmd     `cmd:"" help:"Run the full pipeline once and print the display"`
	Watch      WatchCmd   `cmd:"" help:"Follow a source file and print each new display"`
	Prefs      PrefsCmd   `cmd:"" help:"Inspect and change stored preferences"`
	ConfigFile ConfigCmd  `cmd:"" name:"config" help:"Configuration file operations"`
	Version    VersionCmd `cmd:"" help:"Print version information"`
}

// app carries the process streams and lazily built shared resources.
type app struct {
	ctx     context.Context
	globals *Globals
	stdin   io.Reader
	stdout  io.Writer

	cfg *config.Config
	log *logging.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvpedit: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var cli CLI
	exited := false
	parser, err := kong.New(&cli,
		kong.Name("kvpedit"),
		kong.Description("Tibetan liturgical text phonetics editor"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) { exited = true }),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if exited {
		return nil
	}
	if err != nil {
		return err
	}

	a := &app{ctx: ctx, globals: &cli.Globals, stdin: stdin, stdout: stdout}
	defer a.close()
	return kctx.Run(a)
}

// loadConfig loads the configuration once.
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.globals.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

// logger builds the process logger from the configuration and the
// --log-level override.
func (a *app) logger() (*logging.Logger, error) {
	if a.log != nil {
		return a.log, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	lc := cfg.LoggingConfig()
	if a.globals.LogLevel != "" {
		level, err := logging.ParseLevel(a.globals.LogLevel)
		if err != nil {
			return nil, err
		}
		lc.Level = level
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logging.SetDefault(log)
	a.log = log
	return log, nil
}

// openStore opens the configured key/value store. Open always yields a
// usable store; a backend that failed has already been logged and degrades
// to one that persists nothing.
func (a *app) openStore() (store.KV, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := a.logger()
	if err != nil {
		return nil, err
	}
	kv, _ := store.Open(cfg.StoreOptions(), log.WithComponent("store"))
	return kv, nil
}

// preferences opens the preference store; the returned func closes it.
func (a *app) preferences() (*prefs.Store, func(), error) {
	kv, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	return prefs.New(kv), func() { _ = kv.Close() }, nil
}

// newService builds the HTTP client for the configured endpoint.
func (a *app) newService() (*service.HTTPClient, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := a.logger()
	if err != nil {
		return nil, err
	}
	return service.NewHTTPClient(cfg.Service.URL, cfg.ServiceTimeout(), log)
}

// configPath is the file the configuration was loaded from.
func (a *app) configPath() string {
	if a.globals.Config != "" {
		return a.globals.Config
	}
	return config.ConfigPath()
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Close()
	}
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.stdout, "kvpedit %s\n", Version)
	return nil
}
