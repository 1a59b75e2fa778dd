package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	golden "github.com/ethereum-optimism/infra/op-golden"
	"github.com/ethereum-optimism/infra/op-golden/acceptor"
	"github.com/ethereum-optimism/infra/op-golden/checker"
	"github.com/ethereum-optimism/infra/op-golden/flags"
	"github.com/ethereum-optimism/infra/op-golden/options"
	"github.com/ethereum-optimism/infra/op-golden/process"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-golden"
	app.Usage = "Golden master regression test harness"
	app.Description = "op-golden runs programs and compares their output against accepted output"
	app.ArgsUsage = "[test root]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:            "check",
			Usage:           "Check a single test case given as options",
			ArgsUsage:       "-run: exe -acc: dir [options]",
			SkipFlagParsing: true,
			Action:          check,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), golden.ExitCode(err)))
		}
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log := setupLogger(ctx)

	// The positional root wins over --testdir
	if ctx.NArg() > 1 {
		return nil, golden.NewRuntimeError(fmt.Errorf("expected at most one test root, got %d", ctx.NArg()))
	}
	testDir := ctx.String(flags.TestDir.Name)
	if ctx.NArg() == 1 {
		testDir = ctx.Args().First()
	}

	cfg, err := golden.NewConfig(ctx, log, testDir)
	if err != nil {
		return nil, golden.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc, err := golden.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, golden.NewRuntimeError(fmt.Errorf("failed to create op-golden: %w", err))
	}
	return svc, nil
}

// check runs one test case from the raw option string in the working directory
func check(ctx *cli.Context) error {
	log := setupLogger(ctx)

	cwd, err := os.Getwd()
	if err != nil {
		return golden.NewRuntimeError(fmt.Errorf("failed to get working directory: %w", err))
	}

	chk := checker.New(cwd, checker.Config{
		Log: log,
		Out: ctx.App.Writer,
		Process: process.NewRunner(process.Config{
			Log:             log,
			StderrTailBytes: ctx.Int(flags.StderrTail.Name),
		}),
		Acceptor: acceptor.New(log),
		ShowDiff: ctx.Bool(flags.ShowDiff.Name),
	})

	result := chk.CheckRaw(ctx.Context, options.JoinArgs(ctx.Args().Slice()))
	if !result.Passed() {
		return golden.NewTestFailureError(1, 1)
	}
	return nil
}
