// Raven collects security news, drops duplicates and reports the items
// relevant to one company.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/raven/internal/app"
	rc "github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/notify/console"
	"github.com/linnemanlabs/raven/internal/notify/slack"
	"github.com/linnemanlabs/raven/internal/pipeline"
)

const appName = "raven"
const component = "cli"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg   rc.Config
		logCfg   log.Config
		traceCfg otelx.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	flag.Parse()
	if showVersion {
		fmt.Printf("%s (%s) %s (commit=%s, build_date=%s, go=%s)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion)
		return nil
	}

	// env vars with prefix RAVEN_ fill anything not set on the command line
	cfg.FillFromEnv(flag.CommandLine, "RAVEN_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		logCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	out := console.New(os.Stdout)

	file, err := rc.LoadFile(appCfg.ConfigPath)
	if err != nil {
		var ce *rc.ConfigurationError
		if errors.As(err, &ce) {
			printProblems(os.Stderr, ce)
		}
		return err
	}

	if done, err := intro(out, file, appCfg.CheckConfig, appCfg.MaxAgeDays); done || err != nil {
		return err
	}

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	asm, err := app.Assemble(&appCfg, file, nil, L, app.Hooks{})
	if err != nil {
		return err
	}

	L.Info(ctx, "starting run",
		"version", vi.Version,
		"config", appCfg.ConfigPath,
		"collectors", len(asm.Sources),
		"backend", asm.Backend,
		"model", asm.Model,
		"threshold", asm.Threshold,
		"dry_run", appCfg.DryRun,
		"dedup", !appCfg.NoDedup,
		"max_age_override", appCfg.MaxAgeDays,
	)

	rep, err := asm.Orchestrator.Run(ctx, asm.Options)
	if err != nil {
		if pipeline.IsCancelled(err) {
			L.Warn(context.Background(), "run cancelled")
		}
		return fmt.Errorf("run: %w", err)
	}

	notifiers := []pipeline.Notifier{out}
	if appCfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, slack.New(appCfg.SlackWebhookURL, L))
	}
	var sendErr error
	for _, n := range notifiers {
		sendErr = errors.Join(sendErr, n.Send(ctx, rep))
	}
	if sendErr != nil {
		return fmt.Errorf("deliver report: %w", sendErr)
	}
	return nil
}

// intro prints the config summary when only checking the config, and the
// banner otherwise. done reports that there is nothing left to run.
func intro(out *console.Printer, file *rc.File, checkConfig bool, maxAgeOverride int) (done bool, err error) {
	if checkConfig {
		return true, out.ConfigSummary(file, maxAgeOverride)
	}
	if err := out.Banner(); err != nil {
		return false, fmt.Errorf("write banner: %w", err)
	}
	return false, nil
}

func printProblems(w io.Writer, ce *rc.ConfigurationError) {
	fmt.Fprintf(w, "Configuration validation failed: %s\n", ce.Path)
	for _, p := range ce.Problems {
		fmt.Fprintf(w, "- %s\n", p)
	}
}
