package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/user/voterchart/internal/cache"
	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/config"
	"github.com/user/voterchart/internal/dataset"
	"github.com/user/voterchart/internal/export"
	"github.com/user/voterchart/internal/log"
	"github.com/user/voterchart/internal/models"
	"github.com/user/voterchart/internal/report"
	"github.com/user/voterchart/internal/telemetry"
	"github.com/user/voterchart/internal/tui"
)

// app carries state resolved by the root command to its subcommands.
type app struct {
	configFile string
	cfg        config.Config
	logger     *slog.Logger
	shutdown   telemetry.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	a := &app{}
	d := config.Defaults()

	rootCmd := &cobra.Command{
		Use:   "voterchart",
		Short: "Voterchart charts the change in voters since 2019 per municipality.",
		Long: `Voterchart loads a CSV of municipalities with their change in voters since 2019
and draws a diverging bar chart per province: an interactive page with a
province selector, static SVG and image exports, reports and a terminal preview.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(cmd.Context())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file")
	pf.String("data", d.Data, "CSV/TSV/XLSX file or http(s) URL to load")
	pf.Float64("width", d.Width, "container width in pixels")
	pf.String("province", d.Province, "province to select initially (default: first in the data)")
	pf.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	pf.String("log-format", d.LogFormat, "log format: text, logfmt, json")
	pf.String("otlp-endpoint", d.OTLPEndpoint, "OTLP/HTTP endpoint for traces (default: $OTEL_EXPORTER_OTLP_ENDPOINT)")
	pf.String("cache-dir", d.CacheDir, "directory caching remote data sources (default: user cache dir)")
	pf.Bool("no-cache", d.NoCache, "always download remote data sources")

	rootCmd.AddCommand(
		newServeCmd(a),
		newRenderCmd(a),
		newExportCmd(a),
		newReportCmd(a),
		newPreviewCmd(a),
		newProvincesCmd(a),
		newCacheCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	handler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)

	shutdown, err := telemetry.Setup(cmd.Context(), telemetry.Endpoint(cfg.OTLPEndpoint))
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) cacheStore() (*cache.Store, error) {
	dir := a.cfg.CacheDir
	if dir == "" {
		var err error
		if dir, err = cache.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return cache.NewStore(dir), nil
}

func (a *app) loadDataset(ctx context.Context) (*models.Dataset, error) {
	loader := dataset.NewLoader()
	loader.Logger = a.logger
	if !a.cfg.NoCache && dataset.IsRemote(a.cfg.Data) {
		store, err := a.cacheStore()
		if err != nil {
			a.logger.Warn("remote data cache disabled", "err", err)
		} else {
			loader.Cache = store
		}
	}
	ds, err := loader.Load(ctx, a.cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", a.cfg.Data, err)
	}
	return ds, nil
}

// province returns the configured province, checked against ds.
func (a *app) province(ds *models.Dataset) (string, error) {
	if a.cfg.Province == "" {
		return ds.DefaultCategory(), nil
	}
	if !ds.HasCategory(a.cfg.Province) {
		return "", fmt.Errorf("province %q not found in %s", a.cfg.Province, ds.Source)
	}
	return a.cfg.Province, nil
}

func (a *app) scene(ctx context.Context) (*chart.Scene, error) {
	ds, err := a.loadDataset(ctx)
	if err != nil {
		return nil, err
	}
	province, err := a.province(ds)
	if err != nil {
		return nil, err
	}
	return chart.RenderContext(ctx, ds.Rows, province, a.cfg.Width)
}

// output opens path for writing, or returns w when path is empty or "-".
func output(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return w, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		outputFilePath string
		static         bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Renders the selected province as an SVG document.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scene, err := a.scene(cmd.Context())
			if err != nil {
				return err
			}
			w, closeFn, err := output(outputFilePath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := scene.WriteSVG(w, chart.SVGOptions{Static: static}); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
	cmd.Flags().StringVarP(&outputFilePath, "output-file-path", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&static, "static", false, "draw final geometry without entry transitions")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export OUTPUT_FILE",
		Short: "Exports the selected province as an image.",
		Long: fmt.Sprintf(`Exports the selected province as a static image. The format follows the
file extension: %s.`, strings.Join(export.Formats, ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageFormat, err := export.FormatFromPath(args[0])
			if err != nil {
				return err
			}
			scene, err := a.scene(cmd.Context())
			if err != nil {
				return err
			}
			w, closeFn, err := output(args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := export.Write(w, scene, imageFormat); err != nil {
				_ = closeFn()
				return err
			}
			a.logger.Info("image exported", "path", args[0], "province", scene.Category, "format", imageFormat)
			return closeFn()
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	var outputFilePath string
	cmd := &cobra.Command{
		Use:       "report [html|json|xlsx]",
		Short:     "Generates a report covering every province.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: report.Formats,
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFormat := args[0]
			adapter, err := report.NewAdapter(reportFormat)
			if err != nil {
				return err
			}

			if outputFilePath == "" {
				outputFilePath = fmt.Sprintf("voterchart-report.%s", reportFormat)
			}
			absOutputFilePath, err := filepath.Abs(outputFilePath)
			if err != nil {
				return fmt.Errorf("invalid output file path '%s': %w", outputFilePath, err)
			}

			ds, err := a.loadDataset(cmd.Context())
			if err != nil {
				return err
			}
			if err := adapter.PrepareData(ds, a.cfg.Width); err != nil {
				return fmt.Errorf("failed to prepare %s report data: %w", reportFormat, err)
			}
			if err := adapter.Write(absOutputFilePath); err != nil {
				return fmt.Errorf("failed to write %s report to %s: %w", reportFormat, absOutputFilePath, err)
			}
			a.logger.Info("report generated", "format", reportFormat, "path", absOutputFilePath, "provinces", len(ds.Categories))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFilePath, "output-file-path", "o", "", "output file path for the report")
	return cmd
}

func newPreviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Previews the chart in the terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := a.loadDataset(cmd.Context())
			if err != nil {
				return err
			}
			province, err := a.province(ds)
			if err != nil {
				return err
			}
			return tui.Run(ds, province)
		},
	}
}

func newProvincesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provinces",
		Short: "Lists the provinces in data order with their municipality counts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := a.loadDataset(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range ds.Categories {
				n := len(models.Filter(ds.Rows, c))
				if _, err := fmt.Fprintf(out, "%s\t%s\n", c, humanize.Comma(int64(n))); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCacheCmd(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manages the cache of remote data sources.",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Removes every cached remote data source.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.cacheStore()
			if err != nil {
				return err
			}
			n, err := store.ClearAll()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached %s from %s\n", n, plural(n, "source", "sources"), store.Dir)
			return err
		},
	})
	return cacheCmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
