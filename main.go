package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kwv/cziscene/scene"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stderr).ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		loggerFromContext(ctx).Error("command failed", "err", err)
		os.Exit(1)
	}
}

// newLogger creates a logger with "HH:MM:SS.ms" timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	configKey
)

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the command logger, or log.Default() when none is set.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

func withConfig(ctx context.Context, c *scene.Config) context.Context {
	return context.WithValue(ctx, configKey, c)
}

func configFromContext(ctx context.Context) *scene.Config {
	if c, ok := ctx.Value(configKey).(*scene.Config); ok {
		return c
	}
	return scene.DefaultConfig()
}

// loadConfig reads path when given; otherwise the defaults apply.
func loadConfig(path string) (*scene.Config, error) {
	if path == "" {
		return scene.DefaultConfig(), nil
	}
	return scene.LoadConfig(path)
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	var (
		verbose    bool
		configFile string
	)

	root := &cobra.Command{
		Use:          "cziscene",
		Short:        "Scene geometry, ribbon cropping and montage for slide scans",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			logger := newLogger(logOut, level)

			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			logger.Debug("configuration loaded", "file", configFile, "scene", cfg.Scene, "ribbon", cfg.Ribbon)

			cmd.SetContext(withConfig(withLogger(cmd.Context(), logger), cfg))
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("cziscene %s\n", Version))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML configuration file")

	root.AddCommand(newSceneCmd())
	root.AddCommand(newMontageCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newLocateCmd())
	return root
}

// sceneFlags are the flags shared by commands that load one scene.
type sceneFlags struct {
	file        string
	scene       int
	ribbon      int
	metaOut     string
	tiffOut     string
	geometryOut string
	geojsonOut  string
	previewOut  string
	svgOut      string
	overlayPNG  string
	downsample  int
}

func (f *sceneFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", "slide bundle to read")
	fl.IntVarP(&f.scene, "scene", "s", 1, "scene number, starting at 1")
	fl.IntVarP(&f.ribbon, "ribbon", "r", 0, "ribbon number to crop to, starting at 1 (0 disables)")
	fl.StringVar(&f.metaOut, "meta-out", "", "write the metadata document to this path")
	fl.StringVar(&f.tiffOut, "tiff-out", "", "write the downsampled scene image as TIFF")
	fl.StringVar(&f.geometryOut, "geometry-out", "", "write the scene geometry as JSON")
	fl.StringVar(&f.geojsonOut, "geojson-out", "", "write sections, ROIs and ribbon boxes as GeoJSON")
	fl.StringVar(&f.previewOut, "preview-out", "", "write a PNG preview with annotations")
	fl.StringVar(&f.svgOut, "svg-out", "", "write an SVG overlay of the annotations")
	fl.StringVar(&f.overlayPNG, "overlay-png-out", "", "write the annotation overlay rasterized as PNG")
	fl.IntVar(&f.downsample, "downsample", scene.DefaultDownsample, "block size for TIFF export and preview")
}

// apply overrides configuration values with the flags set on cmd.
func (f *sceneFlags) apply(cmd *cobra.Command, cfg *scene.Config) {
	changed := cmd.Flags().Changed
	if changed("file") {
		cfg.File = f.file
	}
	if changed("scene") {
		cfg.Scene = f.scene
	}
	if changed("ribbon") {
		cfg.Ribbon = f.ribbon
	}
	if changed("meta-out") {
		cfg.Output.Metadata = f.metaOut
	}
	if changed("tiff-out") {
		cfg.Output.TIFF = f.tiffOut
	}
	if changed("geometry-out") {
		cfg.Output.Geometry = f.geometryOut
	}
	if changed("geojson-out") {
		cfg.Output.GeoJSON = f.geojsonOut
	}
	if changed("preview-out") {
		cfg.Output.Preview = f.previewOut
	}
	if changed("svg-out") {
		cfg.Output.SVG = f.svgOut
	}
	if changed("overlay-png-out") {
		cfg.Output.OverlayPNG = f.overlayPNG
	}
	if changed("downsample") {
		cfg.Output.Downsample = f.downsample
	}
}

func newSceneCmd() *cobra.Command {
	var flags sceneFlags
	cmd := &cobra.Command{
		Use:   "scene",
		Short: "Load one scene, optionally cropped to a ribbon, and export it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFromContext(ctx)
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			app := NewApp(cfg, loggerFromContext(ctx))
			defer app.Close()
			return app.RunScene(ctx)
		},
	}
	flags.register(cmd)
	return cmd
}

func newMontageCmd() *cobra.Command {
	var (
		file, out, background string
		downsample            int
	)
	cmd := &cobra.Command{
		Use:   "montage",
		Short: "Composite every tile of a slide into one image",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFromContext(ctx)
			if cmd.Flags().Changed("file") {
				cfg.File = file
			}
			if cmd.Flags().Changed("background") {
				cfg.Background = background
			}
			cfg.Output.Downsample = downsample
			if err := cfg.Validate(); err != nil {
				return err
			}
			return NewApp(cfg, loggerFromContext(ctx)).RunMontage(out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "slide bundle to read")
	cmd.Flags().StringVarP(&out, "out", "o", "montage.tif", "output TIFF path")
	cmd.Flags().StringVar(&background, "background", "", "gap color as #RRGGBB")
	cmd.Flags().IntVar(&downsample, "downsample", 1, "block size for the written montage")
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		flags sceneFlags
		port  int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scene geometry, preview and overlay over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFromContext(ctx)
			flags.apply(cmd, cfg)
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			app := NewApp(cfg, loggerFromContext(ctx))
			defer app.Close()
			return app.RunService(ctx)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP server port")
	return cmd
}

func newLocateCmd() *cobra.Command {
	var (
		opts   LocateOptions
		points []string
	)
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Map scene pixel positions and polygons back to stage coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.Geometry == "" {
				return errors.New("--geometry is required")
			}
			pts, err := scene.ParsePointList(strings.Join(points, " "))
			if err != nil {
				return err
			}
			opts.Points = pts
			return NewApp(configFromContext(ctx), loggerFromContext(ctx)).RunLocate(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Geometry, "geometry", "g", "", "geometry record written by the scene command")
	cmd.Flags().StringVar(&opts.GeoJSON, "geojson", "", "feature collection of scene pixel polygons to map")
	cmd.Flags().StringArrayVarP(&points, "point", "p", nil, "scene pixel position as x,y (repeatable)")
	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", 24*time.Hour, "recompute records older than this; 0 disables the age check")
	return cmd
}
