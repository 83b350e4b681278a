package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// ReaderConfig is the fully validated configuration for one run.
type ReaderConfig struct {
	InQueue           string
	OutQueue          string
	Stdout            bool
	FullRecord        bool
	All               bool
	Count             int
	CountSet          bool
	Block             bool
	Drain             bool
	DrainFirst        bool
	VisibilityTimeout int32
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:      "sqs-reader",
		Usage:     "Read, transfer and drain AWS SQS messages, deduplicating until the desired count has been read",
		ArgsUsage: "<in-queue> [<out-queue>]",
		Description: "Polls <in-queue> until the desired number of distinct messages has been\n" +
			"read, then prints them to stdout, forwards them to <out-queue>, and/or\n" +
			"deletes them from the source.\n\n" +
			"NOTE: transferring message attributes is currently not supported, and thus\n" +
			"custom attributes will not be preserved when moving messages.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdout",
				Usage: "dump message bodies to stdout",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "with --stdout, print the full record (body, receipt handle, MD5, id, attributes) as JSON",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "read all messages from the queue; uses ApproximateNumberOfMessages to guess the queue size",
			},
			&cli.IntFlag{
				Name:  "count",
				Value: 1,
				Usage: "number of distinct messages to attempt to read",
			},
			&cli.BoolFlag{
				Name: "block",
				Usage: "keep polling until the desired number of messages has been read; can result in this " +
					"process holding all messages on the queue (rendering them invisible to other readers) " +
					"for an indeterminate amount of time, use with caution",
			},
			&cli.BoolFlag{
				Name:  "drain",
				Usage: "remove each message from the source queue after it has been printed/forwarded",
			},
			&cli.BoolFlag{
				Name: "drain-first",
				Usage: "remove all collected messages before printing/forwarding; releases the queue sooner " +
					"but a crash in between loses the batch",
			},
			&cli.IntFlag{
				Name:    "visibility-timeout",
				Value:   60,
				Usage:   "seconds collected messages stay invisible to other consumers while draining",
				EnvVars: []string{"SQS_READER_VISIBILITY_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Action: runReader,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("sqs-reader failed")
	}
}

func runReader(c *cli.Context) error {
	switch c.String("log-level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(c.Context)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	queue := NewQueueClient(sqs.NewFromConfig(awsCfg))
	return run(c.Context, queue, cfg, os.Stdout)
}

func configFromContext(c *cli.Context) (ReaderConfig, error) {
	if c.Args().Len() > 2 {
		return ReaderConfig{}, fmt.Errorf("expected <in-queue> [<out-queue>], got %d arguments", c.Args().Len())
	}

	cfg := ReaderConfig{
		InQueue:           c.Args().Get(0),
		OutQueue:          c.Args().Get(1),
		Stdout:            c.Bool("stdout"),
		FullRecord:        c.Bool("full"),
		All:               c.Bool("all"),
		Count:             c.Int("count"),
		CountSet:          c.IsSet("count"),
		Block:             c.Bool("block"),
		Drain:             c.Bool("drain"),
		DrainFirst:        c.Bool("drain-first"),
		VisibilityTimeout: int32(c.Int("visibility-timeout")),
	}
	return cfg, cfg.validate()
}

func (cfg ReaderConfig) validate() error {
	if cfg.InQueue == "" {
		return errors.New("an input queue name is required")
	}
	if !cfg.Stdout && cfg.OutQueue == "" {
		return errors.New("either --stdout or an output queue name must be provided")
	}
	if cfg.All && cfg.CountSet {
		return errors.New("--all and --count are mutually exclusive")
	}
	if cfg.Drain && cfg.DrainFirst {
		return errors.New("--drain and --drain-first are mutually exclusive")
	}
	if cfg.FullRecord && !cfg.Stdout {
		return errors.New("--full requires --stdout")
	}
	if cfg.Count < 0 {
		return errors.New("--count must be >= 0")
	}
	if cfg.VisibilityTimeout < 0 {
		return errors.New("--visibility-timeout must be >= 0")
	}
	return nil
}

// run wires the target resolver, collector and dispositioner together.
// Separate from the CLI action so tests can drive it with a mock queue
// client and capture the output writer.
func run(ctx context.Context, queue *QueueClient, cfg ReaderConfig, out io.Writer) error {
	inURL, err := queue.ResolveQueueURL(ctx, cfg.InQueue)
	if err != nil {
		return err
	}

	destURL := ""
	if cfg.OutQueue != "" {
		destURL, err = queue.ResolveQueueURL(ctx, cfg.OutQueue)
		if err != nil {
			return err
		}
	}

	target, err := ResolveTarget(ctx, queue, inURL, TargetOptions{
		All:      cfg.All,
		Count:    cfg.Count,
		CountSet: cfg.CountSet,
		Block:    cfg.Block,
	})
	if err != nil {
		return err
	}

	drain := cfg.Drain || cfg.DrainFirst

	// A read-only inspection run must not lock messages away from other
	// consumers, so the lease is only held when a drain phase follows.
	visibility := int32(0)
	if drain {
		visibility = cfg.VisibilityTimeout
	}

	log.Info().
		Str("queue", cfg.InQueue).
		Int("target", target).
		Bool("block", cfg.Block).
		Bool("drain", drain).
		Msg("Collecting messages")

	collector := NewCollector(queue, inURL, cfg.Block, visibility)
	collected, err := collector.Collect(ctx, target)
	if err != nil {
		return err
	}

	log.Info().Int("collected", collected.Len()).Msg("Collection finished")

	sinks := Sinks{
		Stdout:     cfg.Stdout,
		FullRecord: cfg.FullRecord,
		Forward:    destURL != "",
		Drain:      cfg.Drain,
		DrainFirst: cfg.DrainFirst,
	}

	dispositioner := NewDispositioner(queue, inURL, destURL, sinks, out)
	return dispositioner.Dispose(ctx, collected)
}
