package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/BurntSushi/toml"

	"kvpedit/internal/config"
	"kvpedit/internal/prefs"
)

// PrefsCmd groups the preference operations.
type PrefsCmd struct {
	List  PrefsListCmd  `cmd:"" default:"1" help:"List every preference and its value"`
	Get   PrefsGetCmd   `cmd:"" help:"Print one preference"`
	Set   PrefsSetCmd   `cmd:"" help:"Change one preference"`
	Reset PrefsResetCmd `cmd:"" help:"Forget every stored preference"`
}

// PrefsListCmd lists preferences.
type PrefsListCmd struct{}

func (c *PrefsListCmd) Run(a *app) error {
	p, closeStore, err := a.preferences()
	if err != nil {
		return err
	}
	defer closeStore()

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, name := range prefs.Names() {
		value, err := p.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, summarize(value))
	}
	return tw.Flush()
}

// summarize keeps multi-line values on one row.
func summarize(value string) string {
	first, rest, multi := strings.Cut(value, "\n")
	if !multi {
		return value
	}
	return fmt.Sprintf("%s … (+%d lines)", first, strings.Count(rest, "\n")+1)
}

// PrefsGetCmd prints one preference.
type PrefsGetCmd struct {
	Name string `arg:"" help:"Preference name"`
}

func (c *PrefsGetCmd) Run(a *app) error {
	p, closeStore, err := a.preferences()
	if err != nil {
		return err
	}
	defer closeStore()

	value, err := p.Get(c.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, value)
	return err
}

// PrefsSetCmd changes one preference.
type PrefsSetCmd struct {
	Name  string `arg:"" help:"Preference name"`
	Value string `arg:"" help:"New value"`
}

func (c *PrefsSetCmd) Run(a *app) error {
	p, closeStore, err := a.preferences()
	if err != nil {
		return err
	}
	defer closeStore()
	return p.Set(c.Name, c.Value)
}

// PrefsResetCmd removes every stored preference.
type PrefsResetCmd struct{}

func (c *PrefsResetCmd) Run(a *app) error {
	p, closeStore, err := a.preferences()
	if err != nil {
		return err
	}
	defer closeStore()
	return p.Reset()
}

// ConfigCmd groups the configuration file operations.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a default configuration file if none exists"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

// ConfigInitCmd writes the default configuration.
type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(a *app) error {
	path := a.configPath()
	_, created, err := config.LoadOrCreate(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(a.stdout, "created %s\n", path)
	} else {
		fmt.Fprintf(a.stdout, "%s already exists\n", path)
	}
	return nil
}

// ConfigShowCmd prints the configuration after file and environment
// overrides are applied.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	return toml.NewEncoder(a.stdout).Encode(cfg)
}
