// Package main provides the CLI entry point for depthcap.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/depthcap/pkg/adapters/filesink"
	"github.com/user/depthcap/pkg/adapters/ggrenderer"
	"github.com/user/depthcap/pkg/adapters/imageencoder"
	"github.com/user/depthcap/pkg/adapters/logger"
	"github.com/user/depthcap/pkg/adapters/nullsink"
	"github.com/user/depthcap/pkg/adapters/osfilesystem"
	"github.com/user/depthcap/pkg/adapters/simdevice"
	"github.com/user/depthcap/pkg/adapters/statusserver"
	"github.com/user/depthcap/pkg/config"
	"github.com/user/depthcap/pkg/controller"
	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
	"github.com/user/depthcap/pkg/summarizer"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "depthcap",
		Usage:       l10n.T("Capture synchronized frame sets from a stereo depth device"),
		Description: l10n.T("depthcap groups frames from every stream into time-aligned sets and saves one image per stream."),
		Version:     version,
		Commands: []*cli.Command{
			captureCommand(),
			configCommand(),
			versionCommand(),
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    l10n.T("YAML configuration file"),
		Category: l10n.T("Configuration"),
	}
}

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:        "capture",
		Aliases:     []string{"start"},
		Usage:       l10n.T("Capture frame sets until stopped"),
		Description: l10n.T("Capture synchronized frame sets and save them until interrupted, stopped over HTTP, or the duration elapses."),
		Flags: []cli.Flag{
			configFlag(),

			// Output
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: l10n.T("Directory for saved images"), Category: l10n.T("Output")},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: l10n.T("Image format (png, tiff, bmp)"), Category: l10n.T("Output")},
			&cli.BoolFlag{Name: "metadata", Usage: l10n.T("Write a JSON metadata file per set"), Category: l10n.T("Output")},
			&cli.BoolFlag{Name: "montage", Usage: l10n.T("Write a contact sheet PNG per set"), Category: l10n.T("Output")},
			&cli.BoolFlag{Name: "dry-run", Usage: l10n.T("Run the pipeline without writing images"), Category: l10n.T("Output")},
			&cli.StringFlag{Name: "summary", Usage: l10n.T("Write a Markdown summary to this path on exit"), Category: l10n.T("Output")},

			// Capture
			&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: l10n.T("Minimum time between saved sets (0 saves every set)"), Category: l10n.T("Capture")},
			&cli.IntFlag{Name: "max-failures", Usage: l10n.T("Consecutive save failures before capture stops"), Category: l10n.T("Capture")},
			&cli.IntFlag{Name: "queue-capacity", Usage: l10n.T("Sets held between stages before the oldest is dropped"), Category: l10n.T("Capture")},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: l10n.T("Stop after this long (0 runs until interrupted)"), Category: l10n.T("Capture")},

			// Status
			&cli.StringFlag{Name: "status-addr", Usage: l10n.T("Serve status and stop endpoints on this address (e.g. :8080)"), Category: l10n.T("Status")},

			// Logging
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info", Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},
		},
		Action: runCapture,
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: l10n.T("Print the effective configuration as YAML"),
		Flags: []cli.Flag{configFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = c.App.Writer.Write(data)
			return err
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, l10n.F("depthcap version %s", version))
			return nil
		},
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("format") {
		cfg.ImageFormat = c.String("format")
	}
	if c.IsSet("metadata") {
		cfg.Metadata = c.Bool("metadata")
	}
	if c.IsSet("dry-run") {
		cfg.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("montage") {
		cfg.Montage = c.Bool("montage")
	}
	if c.IsSet("interval") {
		cfg.Interval = c.Duration("interval").String()
	}
	if c.IsSet("max-failures") {
		cfg.MaxConsecutiveFailures = c.Int("max-failures")
	}
	if c.IsSet("queue-capacity") {
		cfg.QueueCapacity = c.Int("queue-capacity")
	}
	if c.IsSet("status-addr") {
		cfg.StatusAddr = c.String("status-addr")
	}

	return cfg, cfg.Validate()
}

func newLogger(c *cli.Context) (ports.Logger, error) {
	if c.Bool("quiet") {
		return logger.NewNoop(), nil
	}
	level, err := ports.ParseLogLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	return logger.NewConsole(level), nil
}

func runCapture(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	ctrlCfg, err := cfg.ToControllerConfig()
	if err != nil {
		return err
	}
	sourceTimeout, err := cfg.SourceTimeoutDuration()
	if err != nil {
		return err
	}
	jitter, err := cfg.JitterDuration()
	if err != nil {
		return err
	}
	format, err := imageencoder.ParseFormat(cfg.ImageFormat)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	log.Info("Session %s", sessionID)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// The device outlives the capture context so sources stay connected while draining.
	device := simdevice.New(simdevice.Options{
		Streams:         ctrlCfg.Streams,
		Timeout:         sourceTimeout,
		Jitter:          jitter,
		Seed:            cfg.Device.Seed,
		Stalled:         cfg.StalledStreams(),
		DisconnectAfter: cfg.Device.DisconnectAfter,
	}, log)
	if err := device.Start(context.Background()); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	defer device.Close()

	sink := newSink(cfg, format, sessionID, log)

	ctrl := controller.New(ctrlCfg, device.Sources(), sink, log)

	serverDone := make(chan struct{})
	serverCtx, stopServer := context.WithCancel(context.Background())
	if cfg.StatusAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := statusserver.New(cfg.StatusAddr, sessionID, ctrl, log)
		go func() {
			defer close(serverDone)
			if err := srv.Start(serverCtx); err != nil {
				log.Error("Status server failed: %v", err)
			}
		}()
	} else {
		close(serverDone)
	}

	runErr := ctrl.Run(ctx)

	stopServer()
	<-serverDone

	if path := c.String("summary"); path != "" {
		if err := writeSummary(path, sessionID, cfg, ctrlCfg, ctrl.Stats()); err != nil {
			log.Warn("Could not write summary: %v", err)
		} else {
			log.Info("Summary written to %s", path)
		}
	}

	if runErr != nil {
		return fmt.Errorf("%s: %w", l10n.T("capture failed"), runErr)
	}
	return nil
}

func newSink(cfg config.Config, format ports.ImageFormat, sessionID string, log ports.Logger) pipeline.Persister {
	if cfg.DryRun {
		log.Info("Dry run: frames are not written")
		return nullsink.New()
	}

	opts := filesink.Options{
		Dir:       cfg.OutputDir,
		PadWidth:  cfg.PadWidth,
		Metadata:  cfg.Metadata,
		SessionID: sessionID,
	}
	if cfg.Montage {
		opts.Montage = ggrenderer.New(ggrenderer.DefaultOptions())
	}

	log.Info("Writing %s images to %s", format.Extension(), cfg.OutputDir)
	return filesink.New(osfilesystem.New(), imageencoder.New(format), log, opts)
}

func writeSummary(path, sessionID string, cfg config.Config, ctrlCfg controller.Config, stats controller.Stats) error {
	b := summarizer.NewBuilder().
		WithSession(summarizer.SessionInfo{
			ID:         sessionID,
			StartedAt:  stats.StartedAt,
			StoppedAt:  stats.StoppedAt,
			State:      stats.State.String(),
			FatalError: stats.FatalError,
		}).
		WithSettings(summarizer.Settings{
			OutputDir:     cfg.OutputDir,
			ImageFormat:   cfg.ImageFormat,
			Interval:      ctrlCfg.Interval,
			QueueCapacity: ctrlCfg.QueueCapacity,
			MaxFailures:   ctrlCfg.MaxConsecutiveFailures,
			DryRun:        cfg.DryRun,
			Streams:       ctrlCfg.Streams,
		}).
		WithSets(summarizer.SetInfo{
			Emitted:         stats.SetsEmitted,
			Partial:         stats.SetsPartial,
			SyncOverflow:    stats.SyncOverflow,
			CadenceSkipped:  stats.CadenceSkipped,
			PersistOverflow: stats.PersistOverflow,
			Persisted:       stats.Persisted,
			Failed:          stats.Failed,
			Files:           stats.Files,
			LastIndex:       stats.LastIndex,
			LastError:       stats.LastError,
		})

	for _, sc := range ctrlCfg.Streams {
		ss := stats.Streams[sc.ID]
		b.AddStream(summarizer.StreamInfo{
			ID:       sc.ID,
			Frames:   ss.Frames,
			Timeouts: ss.Timeouts,
			Errors:   ss.Errors,
			Dropped:  ss.Dropped,
			Absent:   ss.Absent,
		})
	}

	fs := osfilesystem.New()
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir); err != nil {
			return err
		}
	}
	return summarizer.NewWriter(summarizer.NewMarkdownFormatter(), fs).Write(path, b.Build())
}
