package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "sentinel",
		Usage:   "content moderation and escalation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/sentinel/sentinel.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters, cache, and scan cursors",
			EnvVars: []string{"SENTINEL_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3989",
			EnvVars: []string{"SENTINEL_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3988",
			EnvVars: []string{"SENTINEL_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "analyzer-host",
			Usage:   "scheme, hostname, and port of the content analysis service",
			EnvVars: []string{"SENTINEL_ANALYZER_HOST"},
		},
		&cli.StringFlag{
			Name:    "analyzer-token",
			EnvVars: []string{"SENTINEL_ANALYZER_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "analyzer-rate-limit",
			Usage:   "max analysis requests per second to the analyzer service",
			Value:   20,
			EnvVars: []string{"SENTINEL_ANALYZER_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "agency-gateway-host",
			Usage:   "scheme, hostname, and port of the law-enforcement intake gateway",
			EnvVars: []string{"SENTINEL_AGENCY_GATEWAY_HOST"},
		},
		&cli.StringFlag{
			Name:    "agency-gateway-token",
			EnvVars: []string{"SENTINEL_AGENCY_GATEWAY_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "webhook URL for high-severity alert notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.IntFlag{
			Name:    "scan-batch-size",
			Value:   50,
			EnvVars: []string{"SENTINEL_SCAN_BATCH_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "cleanup-interval",
			Value:   5 * time.Minute,
			EnvVars: []string{"SENTINEL_CLEANUP_INTERVAL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("sentinel"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		srv, err := NewServer(Config{
			Logger:             logger,
			DatabaseURL:        cctx.String("database-url"),
			MaxDBConnections:   cctx.Int("max-db-connections"),
			RedisURL:           cctx.String("redis-url"),
			Bind:               cctx.String("bind"),
			AnalyzerHost:       cctx.String("analyzer-host"),
			AnalyzerToken:      cctx.String("analyzer-token"),
			AnalyzerRateLimit:  cctx.Int("analyzer-rate-limit"),
			AgencyGatewayHost:  cctx.String("agency-gateway-host"),
			AgencyGatewayToken: cctx.String("agency-gateway-token"),
			SlackWebhookURL:    cctx.String("slack-webhook-url"),
			ScanBatchSize:      cctx.Int("scan-batch-size"),
			CleanupInterval:    cctx.Duration("cleanup-interval"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}
