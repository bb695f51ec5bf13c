package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beetlebugorg/cantons/internal/config"
	"github.com/beetlebugorg/cantons/internal/monitoring"
	"github.com/beetlebugorg/cantons/pkg/cantons"
)

var (
	configPath   string
	cfg          *config.Config
	logger       *slog.Logger
	showProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "cantons",
	Short: "Tile cantonal parcel datasets into grid cells",
	Long: `cantons partitions a cantonal parcel dataset into a regular grid of
square cells, clips the parcels of every cell into its own tile and removes
tiles that cover too little of their cell.

Settings come from an optional JSON config file, then CANTONS_* environment
variables (a .env file in the working directory is read first), then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		logger = monitoring.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "JSON config file")
	f.StringP("data", "d", "", "input parcel dataset (.shp, .gpkg, .geojson)")
	f.String("layer", "", "GeoPackage feature table (default: first)")
	f.StringSlice("attributes", nil, "attribute columns to carry into tiles")
	f.String("crs", "", "CRS override, e.g. EPSG:2056")
	f.Float64("cell-size", config.DefaultCellSize, "grid cell side length in CRS units")
	f.Float64("threshold", config.DefaultThreshold, "minimum covered fraction of a cell")
	f.String("span", "exact", "span policy: exact, tolerance or coverage")
	f.Float64("span-tolerance", 0, "allowed span deviation for the tolerance policy")
	f.Float64("min-span-fraction", 1, "minimum span fraction for the coverage policy")
	f.StringP("output", "o", "", "output directory (default: directory of the input)")
	f.String("format", "gpkg", "tile format: gpkg or geojson")
	f.Bool("parallel", false, "clip cells in parallel")
	f.Int("workers", 0, "clipping and reading goroutines (default: number of CPUs)")
	f.String("cell-timeout", "", "maximum clip time per cell, e.g. 30s")
	f.Bool("rescan", false, "re-read tiles from disk before filtering")
	f.Float64("mask-pixel-size", 1, "mask resolution in CRS units per pixel")
	f.String("log-level", "", "debug, info, warn or error (default: $LOG_LEVEL or info)")
	f.String("log-format", "", "text or json (default: $LOG_FORMAT or text)")
	f.BoolVar(&showProgress, "progress", false, "print extraction progress to stderr")
}

// loadConfig layers the config file, environment and changed flags.
// Subcommand flags that share a config field are picked up the same way.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}

	f := cmd.Flags()
	str := map[string]*string{
		"data":         &c.DataPath,
		"layer":        &c.Layer,
		"crs":          &c.CRS,
		"span":         &c.SpanPolicy,
		"output":       &c.OutputDir,
		"format":       &c.Format,
		"cell-timeout": &c.CellTimeout,
		"log-level":    &c.LogLevel,
		"log-format":   &c.LogFormat,
		"report":       &c.ReportPath,
		"metrics":      &c.MetricsPath,
	}
	for name, dst := range str {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	floats := map[string]*float64{
		"cell-size":         &c.CellSize,
		"threshold":         &c.Threshold,
		"span-tolerance":    &c.SpanTolerance,
		"min-span-fraction": &c.MinSpanFraction,
		"mask-pixel-size":   &c.MaskPixelSize,
	}
	for name, dst := range floats {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
	bools := map[string]*bool{
		"parallel": &c.Parallel,
		"rescan":   &c.Rescan,
		"masks":    &c.Masks,
	}
	for name, dst := range bools {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	if f.Changed("workers") {
		c.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("attributes") {
		c.Attributes, _ = f.GetStringSlice("attributes")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// options converts the loaded config into library options.
func options() (cantons.Options, error) {
	opts := cantons.DefaultOptions()
	opts.CellSize = cfg.CellSize
	opts.Threshold = cfg.Threshold
	opts.SpanTolerance = cfg.SpanTolerance
	opts.MinSpanFraction = cfg.MinSpanFraction
	opts.OutputDir = cfg.ResolveOutputDir()
	opts.Format = cantons.Format(cfg.Format)
	opts.Parallel = cfg.Parallel
	opts.CellTimeout = cfg.GetCellTimeout()
	opts.Rescan = cfg.Rescan
	opts.Masks = cfg.Masks
	opts.MaskPixelSize = cfg.MaskPixelSize
	opts.ReportPath = cfg.ReportPath
	opts.MetricsPath = cfg.MetricsPath
	opts.Logger = logger
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}

	span, err := cantons.ParseSpanPolicy(cfg.SpanPolicy)
	if err != nil {
		return opts, err
	}
	opts.Span = span

	opts.Load.Layer = cfg.Layer
	opts.Load.Attributes = cfg.Attributes
	if cfg.CRS != "" {
		crs, err := cantons.ParseCRS(cfg.CRS)
		if err != nil {
			return opts, err
		}
		opts.Load.CRS = crs
	}

	if showProgress {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rcells %d/%d", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	return opts, nil
}

// openCanton loads the configured dataset.
func openCanton() (*cantons.Canton, error) {
	if cfg.DataPath == "" {
		return nil, fmt.Errorf("no input dataset: set --data, data_path or CANTONS_DATA_PATH")
	}
	opts, err := options()
	if err != nil {
		return nil, err
	}
	return cantons.Open(cfg.DataPath, opts)
}

// openStore opens the tile store of the configured output directory
// without loading the dataset.
func openStore() (cantons.TileStore, string, error) {
	if cfg.DataPath == "" && cfg.OutputDir == "" {
		return nil, "", fmt.Errorf("no output directory: set --output or --data")
	}
	dir := cfg.ResolveOutputDir()
	store, err := cantons.NewStore(dir, cantons.Format(cfg.Format), cantons.CRS{})
	return store, dir, err
}
