package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_GOLDEN"

var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Root directory to discover test configurations under. A positional argument takes priority; defaults to the working directory.",
	}
	Pattern = &cli.StringFlag{
		Name:    "pattern",
		Value:   "testconfig*.txt",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PATTERN"),
		Usage:   "Glob matching test configuration file names",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Report = &cli.StringFlag{
		Name:    "report",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT"),
		Usage:   "Path of a YAML report written after every run. Empty disables the report.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory receiving a testrun-<run id> log directory per run. Empty disables run logs.",
	}
	ShowDiff = &cli.BoolFlag{
		Name:    "show-diff",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_DIFF"),
		Usage:   "Print a line diff against the first accepted output when a test output is not accepted",
	}
	StderrTail = &cli.IntFlag{
		Name:    "stderr-tail",
		Value:   64 * 1024,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STDERR_TAIL"),
		Usage:   "Bytes of standard error kept per test for debug logging",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the health check endpoint (e.g. '0.0.0.0:8080'). Empty disables it.",
	}
)

var optionalFlags = []cli.Flag{
	TestDir,
	Pattern,
	RunInterval,
	Report,
	LogDir,
	ShowDiff,
	StderrTail,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	return opflags.CheckRequiredXor(ctx)
}
