package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"kvpedit/internal/render"
)

// RenderCmd renders raw phonetic text without calling the service.
type RenderCmd struct {
	Level   string `short:"l" xor:"mode" help:"Detail level: advanced, intermediate or simple"`
	Variant string `short:"V" xor:"mode" help:"Display variant: kvp, ipa, advanced, intermediate or simple"`
	All     string `name:"all" xor:"mode" help:"Render every variant as JSON, reading romanized text from this file" type:"existingfile"`
	File    string `arg:"" optional:"" help:"Input file (default: stdin)" type:"existingfile"`
}

func (c *RenderCmd) Run(a *app) error {
	raw, err := readInput(a.stdin, c.File)
	if err != nil {
		return err
	}

	switch {
	case c.All != "":
		romanized, err := os.ReadFile(c.All)
		if err != nil {
			return fmt.Errorf("read romanized text: %w", err)
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(render.Render(string(romanized), raw))

	case c.Level != "":
		level, err := render.ParseLevel(c.Level)
		if err != nil {
			return err
		}
		_, err = io.WriteString(a.stdout, render.Phonetic(raw, level))
		return err

	default:
		variant := c.Variant
		if variant == "" {
			variant = render.VariantAdvanced
		}
		out, err := renderVariant(raw, variant)
		if err != nil {
			return err
		}
		_, err = io.WriteString(a.stdout, out)
		return err
	}
}

// renderVariant renders raw as a single variant. The kvp variant treats raw
// as romanized text; every other variant treats it as raw phonetics.
func renderVariant(raw, variant string) (string, error) {
	switch variant {
	case render.VariantKVP:
		return render.KVP(raw), nil
	case render.VariantIPA:
		return render.IPA(raw), nil
	}
	level, err := render.ParseLevel(variant)
	if err != nil {
		return "", fmt.Errorf("unknown variant %q", variant)
	}
	return render.Phonetic(raw, level), nil
}

// PlainCmd strips display markup, as when copying to the clipboard.
type PlainCmd struct {
	File string `arg:"" optional:"" help:"Input file (default: stdin)" type:"existingfile"`
}

func (c *PlainCmd) Run(a *app) error {
	markup, err := readInput(a.stdin, c.File)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, render.PlainText(markup))
	return err
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
