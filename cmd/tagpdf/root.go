package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wudi/tagpdf/assets"
	"github.com/wudi/tagpdf/composer"
	"github.com/wudi/tagpdf/config"
	"github.com/wudi/tagpdf/internal/yamlutil"
	"github.com/wudi/tagpdf/library"
	"github.com/wudi/tagpdf/observability"
	"github.com/wudi/tagpdf/options"
	"github.com/wudi/tagpdf/receiver"
)

// env is what every command needs after flags are parsed.
type env struct {
	cfg    *config.Config
	logger observability.Logger
}

func loadEnv(g *globalFlags, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	hopts := &slog.HandlerOptions{Level: observability.ParseLevel(level)}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(stderr, hopts)
	} else {
		h = slog.NewTextHandler(stderr, hopts)
	}
	return &env{cfg: cfg, logger: observability.NewSlogLogger(slog.New(h))}, nil
}

func (e *env) composer() (*composer.Composer, error) {
	set, err := assets.Load(e.cfg.Assets.Root)
	if err != nil {
		return nil, fmt.Errorf("loading assets: %w", err)
	}
	return composer.New(set,
		composer.WithLanguage(e.cfg.Tag()),
		composer.WithCreator(e.cfg.Document.Creator),
		composer.WithPageSize(e.cfg.PageRect()),
		composer.WithMargins(e.cfg.LayoutMargins()),
		composer.WithFontSize(e.cfg.Document.FontSize),
		composer.WithLogger(e.logger),
	), nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "tagpdf",
		Short:        "Convert markup into tagged, accessible PDF documents",
		Version:      Version,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	bindGlobalFlags(root.PersistentFlags(), g)
	root.AddCommand(
		newConvertCmd(g, stdout, stderr),
		newProcessCmd(g, stderr),
		newEnqueueCmd(g, stdout, stderr),
	)
	return root
}

func newConvertCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	f := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert <input.html|input.md>",
		Short: "Convert one markup file to PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), g, f, args[0], stdout, stderr)
		},
	}
	bindConvertFlags(cmd.Flags(), f)
	return cmd
}

func runConvert(ctx context.Context, g *globalFlags, f *convertFlags, input string, stdout, stderr io.Writer) error {
	e, err := loadEnv(g, stderr)
	if err != nil {
		return err
	}
	format, err := resolveFormat(f.format, input)
	if err != nil {
		return err
	}
	markup, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	c, err := e.composer()
	if err != nil {
		return err
	}
	out, err := c.Compose(ctx, composer.Request{
		Markup: string(markup),
		Title:  f.title,
		Flags:  options.Parse(f.options),
		Format: format,
	})
	if err != nil {
		return err
	}
	output := f.output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".pdf"
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	fmt.Fprintf(stdout, "Created %s\n", output)
	return nil
}

// resolveFormat prefers the explicit flag, then the input extension.
func resolveFormat(flagValue, input string) (composer.Format, error) {
	if flagValue != "" {
		return composer.ParseFormat(flagValue)
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".md", ".markdown":
		return composer.FormatMarkdown, nil
	}
	return composer.FormatHTML, nil
}

func newProcessCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	f := &processFlags{}
	cmd := &cobra.Command{
		Use:   "process [item-id...]",
		Short: "Process queued items (all pending items when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := loadEnv(g, stderr)
			if err != nil {
				return err
			}
			store, err := receiver.NewSpoolStore(e.cfg.Spool.Dir)
			if err != nil {
				return err
			}
			sink, err := library.NewFileSystem(e.cfg.Library.Root)
			if err != nil {
				return err
			}
			c, err := e.composer()
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				if ids, err = store.Pending(ctx); err != nil {
					return err
				}
			}
			concurrency := e.cfg.Spool.Concurrency
			if f.concurrency > 0 {
				concurrency = f.concurrency
			}
			p := receiver.NewProcessor(store, c, sink,
				receiver.WithLogger(e.logger),
				receiver.WithConcurrency(concurrency),
			)
			e.logger.Info("processing items", observability.Int("count", len(ids)))
			return p.HandleAll(ctx, ids)
		},
	}
	bindProcessFlags(cmd.Flags(), f)
	return cmd
}

func newEnqueueCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <item.yaml>",
		Short: "Queue a conversion request and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := loadEnv(g, stderr)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading item: %w", err)
			}
			var item receiver.Item
			if err := yamlutil.UnmarshalStrict(data, &item); err != nil {
				return fmt.Errorf("parsing item: %w", err)
			}
			store, err := receiver.NewSpoolStore(e.cfg.Spool.Dir)
			if err != nil {
				return err
			}
			id, err := store.Enqueue(ctx, item)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, id)
			return nil
		},
	}
}
