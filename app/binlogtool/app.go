// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package binlogtool defines the logic for the "binlogtool" command.
//
// binlogtool inspects, redacts and snapshots build binary logs:
//
//	binlogtool dump [--tree] PATH
//	binlogtool redact [--token TOKEN]... [--archives] [-o OUT] PATH
//	binlogtool snapshot [-o OUT] PATH
package binlogtool

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/redact"
	"github.com/danjacques/gobinlog/replay"
	"github.com/danjacques/gobinlog/support/logging"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer
	logger logging.L

	verbose     bool
	metricsPath string
	registry    *prometheus.Registry
}

type subcommand struct {
	name  string
	usage string
	run   func(c context.Context, a *app, args []string) error
}

var subcommands = []*subcommand{
	{"dump", "Print the events or tree of a binary log or snapshot.", runDump},
	{"redact", "Replace secrets in a binary log.", runRedact},
	{"snapshot", "Build a binary log's tree and write it as a snapshot.", runSnapshot},
}

// Main is the main entry point. It returns the process exit code.
func Main(args []string) int {
	c, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancelFunc()

	a := app{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := a.run(c, args); err != nil {
		fmt.Fprintf(a.stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

func (a *app) usage() {
	fmt.Fprintf(a.stderr, "Usage: binlogtool <subcommand> [flags]\n\nSubcommands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(a.stderr, "  %-10s %s\n", sc.name, sc.usage)
	}
	fmt.Fprintf(a.stderr, "\nRun 'binlogtool <subcommand> --help' for subcommand flags.\n")
}

func (a *app) run(c context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errors.New("subcommand required")
	}

	name := args[0]
	switch name {
	case "-h", "--help", "help":
		a.usage()
		return nil
	}

	for _, sc := range subcommands {
		if sc.name == name {
			return sc.run(c, a, args[1:])
		}
	}
	a.usage()
	return errors.Errorf("unknown subcommand: %q", name)
}

// flagSet returns a FlagSet for a subcommand, carrying the common flags.
func (a *app) flagSet(name, positional string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: binlogtool %s [flags] %s\n\nFlags:\n", name, positional)
		fs.PrintDefaults()
	}

	fs.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging.")
	fs.StringVar(&a.metricsPath, "metrics_out", "",
		"If set, write Prometheus metrics in text format to this path on exit.")
	return fs
}

// parse parses args, requiring exactly one positional argument, and sets up
// logging and monitoring.
func (a *app) parse(fs *pflag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", errors.Errorf("expected exactly one path, got %d", fs.NArg())
	}

	if err := a.setupLogging(); err != nil {
		return "", err
	}

	a.registry = prometheus.NewRegistry()
	binlog.RegisterMonitoring(a.registry)
	replay.RegisterMonitoring(a.registry)
	redact.RegisterMonitoring(a.registry)
	return fs.Arg(0), nil
}

func (a *app) setupLogging() error {
	if a.logger != nil {
		return nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if a.verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "configuring logging")
	}
	a.logger = logging.Zap(l)
	return nil
}

// finish writes metrics, if requested, after a subcommand completes.
func (a *app) finish(err error) error {
	if a.metricsPath != "" && a.registry != nil {
		if merr := prometheus.WriteToTextfile(a.metricsPath, a.registry); merr != nil && err == nil {
			err = errors.Wrap(merr, "writing metrics")
		}
	}
	return err
}
