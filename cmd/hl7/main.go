package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/oarkflow/log"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/pipeline"
	"github.com/oarkflow/hl7/pkg/server"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "hl7",
		Usage:   "Parse, query and ingest HL7 v2 messages",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file (YAML, JSON, BCL or TOML) for delimiters, segments and pipeline",
				EnvVars: []string{"HL7_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "Summarise every message in a file (use - for stdin)",
				ArgsUsage: "FILE",
				Action:    inspectAction,
			},
			{
				Name:      "get",
				Usage:     "Print selected field values, e.g. PID.patient_name.1 or OBX(*).5",
				ArgsUsage: "FILE SELECTOR...",
				Action:    getAction,
			},
			{
				Name:      "convert",
				Usage:     "Render messages as JSON, XML or MessagePack",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "json",
						Usage:   "Output format: json, xml or msgpack",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (default stdout)",
					},
				},
				Action: convertAction,
			},
			{
				Name:  "ingest",
				Usage: "Run the configured sources through the pipeline into the sink",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Cron expression; run repeatedly instead of once (e.g. \"@every 5m\")",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop each source after this many messages",
					},
				},
				Action: ingestAction,
			},
			{
				Name:      "publish",
				Usage:     "Publish every message in a file to an AMQP queue",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "url",
						Usage:    "AMQP broker URL",
						EnvVars:  []string{"HL7_AMQP_URL"},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "queue",
						Value: "hl7",
						Usage: "Queue name",
					},
				},
				Action: publishAction,
			},
			{
				Name:  "serve",
				Usage: "Start the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
				},
				Action: serveAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func ingestAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("ingest: configuration has no sources")
	}
	schedule := c.String("schedule")
	if schedule == "" {
		schedule = cfg.Schedule
	}
	ctx, stop := signalContext()
	defer stop()
	run := func() error {
		p, err := pipeline.FromConfig(cfg, os.Stdout, pipeline.WithLimit(c.Int("limit")))
		if err != nil {
			return err
		}
		summary, err := p.Run(ctx)
		printSummary(os.Stderr, summary, err)
		return err
	}
	if schedule == "" {
		return run()
	}
	scheduler, err := newScheduler(schedule, func() {
		if err := run(); err != nil {
			log.Printf("scheduled ingest failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	log.Printf("ingest scheduled with %q", schedule)
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

// newScheduler runs job on schedule. A run still in progress when the next
// tick fires makes that tick a no-op, so runs never overlap.
func newScheduler(schedule string, job func()) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("ingest: invalid schedule %q: %w", schedule, err)
	}
	return scheduler, nil
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	addr := c.String("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv, err := server.New(cfg, server.WithVersion(version))
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Listen(addr)
	}()
	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Printf("shutting down HL7 server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
